package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
	"dukapos/backend/internal/remote"
)

type customerSyncer struct {
	local   localstore.Store
	remote  remote.Client
	retrier *Retrier
	logger  *logrus.Logger
}

func (s *customerSyncer) Push(ctx context.Context) (PushOutcome, error) {
	customers, err := s.local.ListCustomers(ctx)
	if err != nil {
		return PushOutcome{}, fmt.Errorf("list local customers: %w", err)
	}

	var out PushOutcome
	for _, customer := range customers {
		if customer.Synced {
			continue
		}
		if err := s.pushOne(ctx, customer); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("customer %q: %v", customer.Name, err))
			continue
		}
		out.Synced++
	}
	return out, nil
}

func (s *customerSyncer) pushOne(ctx context.Context, customer domain.Customer) error {
	remoteID := customer.RemoteID

	if remoteID == "" {
		err := s.retrier.Do(ctx, "push-customer", func(ctx context.Context) error {
			existing, err := s.remote.FindCustomerByPhone(ctx, customer.Phone)
			if err == nil {
				remoteID = existing.ID
				return nil
			}
			if !errors.Is(err, remote.ErrNotFound) {
				return err
			}
			inserted, err := s.remote.InsertCustomer(ctx, toRemoteCustomer(customer))
			if err != nil {
				return err
			}
			remoteID = inserted.ID
			return nil
		})
		if err != nil {
			return err
		}
	}

	customer.RemoteID = remoteID
	customer.Synced = true
	if _, err := s.local.SaveCustomer(ctx, customer); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// EnsureRemote resolves a local customer key to its canonical remote key,
// pushing the customer first when it has never been synced.
func (s *customerSyncer) EnsureRemote(ctx context.Context, localID string) (string, error) {
	customer, err := s.local.GetCustomer(ctx, localID)
	if err != nil {
		return "", fmt.Errorf("customer %s not found locally", localID)
	}
	if customer.RemoteID != "" {
		return customer.RemoteID, nil
	}
	if err := s.pushOne(ctx, *customer); err != nil {
		return "", fmt.Errorf("customer %q: %w", customer.Name, err)
	}
	pushed, err := s.local.GetCustomer(ctx, localID)
	if err != nil {
		return "", fmt.Errorf("customer %s not found locally", localID)
	}
	return pushed.RemoteID, nil
}

func (s *customerSyncer) Pull(ctx context.Context) ([]domain.Customer, []string) {
	var rows []remote.Customer
	err := s.retrier.Do(ctx, "pull-customers", func(ctx context.Context) error {
		var listErr error
		rows, listErr = s.remote.ListCustomers(ctx)
		return listErr
	})
	if err != nil {
		return nil, []string{fmt.Sprintf("pull customers: %v", err)}
	}

	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, fromRemoteCustomer(row))
	}
	return customers, nil
}

func toRemoteCustomer(c domain.Customer) remote.Customer {
	return remote.Customer{
		Name:       c.Name,
		Phone:      c.Phone,
		Location:   c.Location,
		Notes:      c.Notes,
		SyncStatus: remote.SyncStatusSynced,
		CreatedAt:  c.CreatedAt,
	}
}

func fromRemoteCustomer(row remote.Customer) domain.Customer {
	return domain.Customer{
		ID:        row.ID,
		RemoteID:  row.ID,
		Name:      row.Name,
		Phone:     row.Phone,
		Location:  row.Location,
		Notes:     row.Notes,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Synced:    true,
	}
}
