package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/repository"
)

// --- accounts ---

type AccountRepo struct{ s *Store }

func (r *AccountRepo) CreateForOwner(_ context.Context, tx pgx.Tx, ownerID uuid.UUID) error {
	return r.s.write(tx, func(st *state) error {
		now := r.s.now()
		for _, kind := range []string{models.AccountAvailable, models.AccountEscrow} {
			key := ownerKind{ownerID, kind}
			if _, ok := st.byOwnerKind[key]; ok {
				continue
			}
			owner := ownerID
			a := models.Account{ID: uuid.New(), OwnerID: &owner, Kind: kind, CreatedAt: now, UpdatedAt: now}
			st.accounts[a.ID] = a
			st.byOwnerKind[key] = a.ID
		}
		return nil
	})
}

func (r *AccountRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	var out *models.Account
	r.s.read(func(st *state) {
		if a, ok := st.accounts[id]; ok {
			out = &a
		}
	})
	if out == nil {
		return nil, models.ErrAccountNotFound
	}
	return out, nil
}

// GetByIDForUpdate needs no row lock: the transaction already owns the store.
func (r *AccountRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	var out *models.Account
	err := r.s.write(tx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return models.ErrAccountNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *AccountRepo) GetByOwnerKind(_ context.Context, tx pgx.Tx, ownerID uuid.UUID, kind string) (*models.Account, error) {
	var out *models.Account
	err := r.s.write(tx, func(st *state) error {
		id, ok := st.byOwnerKind[ownerKind{ownerID, kind}]
		if !ok {
			return models.ErrAccountNotFound
		}
		a := st.accounts[id]
		out = &a
		return nil
	})
	return out, err
}

func (r *AccountRepo) AddBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := r.s.write(tx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return models.ErrAccountNotFound
		}
		if a.Bounded() && a.Balance+delta < 0 {
			return models.ErrInsufficientFunds
		}
		a.Balance += delta
		a.UpdatedAt = r.s.now()
		st.accounts[id] = a
		balance = a.Balance
		return nil
	})
	return balance, err
}

func (r *AccountRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Account, error) {
	var list []*models.Account
	r.s.read(func(st *state) {
		for _, a := range st.accounts {
			if a.OwnerID != nil && *a.OwnerID == ownerID {
				list = append(list, &a)
			}
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].Kind < list[j].Kind })
	return list, nil
}

func (r *AccountRepo) List(_ context.Context) ([]*models.Account, error) {
	var list []*models.Account
	r.s.read(func(st *state) {
		for _, a := range st.accounts {
			list = append(list, &a)
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// --- ledger ---

type LedgerRepo struct{ s *Store }

func (r *LedgerRepo) CreateTx(_ context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return r.s.write(tx, func(st *state) error {
		e.CreatedAt = r.s.now()
		st.entries = append(st.entries, *e)
		return nil
	})
}

func (r *LedgerRepo) ListByReferenceTx(_ context.Context, tx pgx.Tx, referenceID string) ([]*models.LedgerEntry, error) {
	var list []*models.LedgerEntry
	err := r.s.write(tx, func(st *state) error {
		list = entriesByReference(st, referenceID)
		return nil
	})
	return list, err
}

func (r *LedgerRepo) ListByReference(_ context.Context, referenceID string) ([]*models.LedgerEntry, error) {
	var list []*models.LedgerEntry
	r.s.read(func(st *state) { list = entriesByReference(st, referenceID) })
	return list, nil
}

func entriesByReference(st *state, referenceID string) []*models.LedgerEntry {
	var list []*models.LedgerEntry
	for _, e := range st.entries {
		if e.ReferenceID == referenceID {
			list = append(list, &e)
		}
	}
	return list
}

func (r *LedgerRepo) ListByAccountIDs(_ context.Context, accountIDs []uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	want := make(map[uuid.UUID]bool, len(accountIDs))
	for _, id := range accountIDs {
		want[id] = true
	}
	var list []*models.LedgerEntry
	r.s.read(func(st *state) {
		for i := len(st.entries) - 1; i >= 0 && (limit <= 0 || len(list) < limit); i-- {
			e := st.entries[i]
			if want[e.DebitAccountID] || want[e.CreditAccountID] {
				list = append(list, &e)
			}
		}
	})
	return list, nil
}

func (r *LedgerRepo) NetBalances(_ context.Context) (map[uuid.UUID]int64, error) {
	net := make(map[uuid.UUID]int64)
	r.s.read(func(st *state) {
		for _, e := range st.entries {
			net[e.CreditAccountID] += e.Amount
			net[e.DebitAccountID] -= e.Amount
		}
	})
	return net, nil
}

// --- jobs ---

type JobRepo struct{ s *Store }

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.s.autocommit(ctx, func(st *state) error {
		if _, ok := st.jobs[j.ID]; ok {
			return uniqueViolation("jobs_pkey")
		}
		now := r.s.now()
		j.CreatedAt, j.UpdatedAt = now, now
		st.jobs[j.ID] = *j
		return nil
	})
}

func (r *JobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	var out *models.Job
	r.s.read(func(st *state) {
		if j, ok := st.jobs[id]; ok {
			out = &j
		}
	})
	if out == nil {
		return nil, models.ErrJobNotFound
	}
	return out, nil
}

func (r *JobRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	var out *models.Job
	err := r.s.write(tx, func(st *state) error {
		j, ok := st.jobs[id]
		if !ok {
			return models.ErrJobNotFound
		}
		out = &j
		return nil
	})
	return out, err
}

func (r *JobRepo) UpdateStatusTx(_ context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	return r.s.write(tx, func(st *state) error {
		j, ok := st.jobs[id]
		if !ok {
			return models.ErrJobNotFound
		}
		j.Status = status
		j.UpdatedAt = r.s.now()
		st.jobs[id] = j
		return nil
	})
}

func (r *JobRepo) AssignWorkerTx(_ context.Context, tx pgx.Tx, id, workerID uuid.UUID) error {
	return r.s.write(tx, func(st *state) error {
		j, ok := st.jobs[id]
		if !ok {
			return models.ErrJobNotFound
		}
		w := workerID
		j.WorkerID = &w
		j.Status = models.JobStatusInProgress
		j.UpdatedAt = r.s.now()
		st.jobs[id] = j
		return nil
	})
}

func (r *JobRepo) List(_ context.Context, f repository.JobFilter) ([]*models.Job, error) {
	var list []*models.Job
	r.s.read(func(st *state) {
		for _, j := range st.jobs {
			if f.Status != "" && j.Status != f.Status {
				continue
			}
			if f.CreatorID != nil && j.CreatorID != *f.CreatorID {
				continue
			}
			if f.WorkerID != nil && (j.WorkerID == nil || *j.WorkerID != *f.WorkerID) {
				continue
			}
			list = append(list, &j)
		}
	})
	sort.Slice(list, func(i, k int) bool { return list[i].CreatedAt.After(list[k].CreatedAt) })
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// --- disputes ---

type DisputeRepo struct{ s *Store }

func (r *DisputeRepo) CreateTx(_ context.Context, tx pgx.Tx, d *models.Dispute) error {
	return r.s.write(tx, func(st *state) error {
		d.CreatedAt = r.s.now()
		st.disputes[d.ID] = *d
		return nil
	})
}

func (r *DisputeRepo) LatestByJobIDForUpdate(_ context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Dispute, error) {
	var out *models.Dispute
	err := r.s.write(tx, func(st *state) error {
		for _, d := range st.disputes {
			if d.JobID != jobID {
				continue
			}
			if out == nil || d.CreatedAt.After(out.CreatedAt) {
				out = &d
			}
		}
		if out == nil {
			return models.ErrDisputeNotFound
		}
		return nil
	})
	return out, err
}

func (r *DisputeRepo) ResolveTx(_ context.Context, tx pgx.Tx, d *models.Dispute) error {
	return r.s.write(tx, func(st *state) error {
		cur, ok := st.disputes[d.ID]
		if !ok || cur.Status != models.DisputeStatusOpen {
			return models.ErrInvalidState
		}
		cur.Status = d.Status
		cur.Resolution = d.Resolution
		cur.ResolvedBy = d.ResolvedBy
		cur.ResolvedAt = d.ResolvedAt
		st.disputes[d.ID] = cur
		return nil
	})
}

func (r *DisputeRepo) ListOpen(_ context.Context) ([]*models.Dispute, error) {
	var list []*models.Dispute
	r.s.read(func(st *state) {
		for _, d := range st.disputes {
			if d.Status == models.DisputeStatusOpen {
				list = append(list, &d)
			}
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// --- escrow holds ---

type HoldRepo struct{ s *Store }

func (r *HoldRepo) CreateTx(_ context.Context, tx pgx.Tx, jobID uuid.UUID, amount int64) (bool, error) {
	created := false
	err := r.s.write(tx, func(st *state) error {
		if _, ok := st.holds[jobID]; ok {
			return nil
		}
		now := r.s.now()
		st.holds[jobID] = models.EscrowHold{
			ID: uuid.New(), JobID: jobID, Amount: amount, Status: models.HoldStatusHeld,
			CreatedAt: now, UpdatedAt: now,
		}
		created = true
		return nil
	})
	return created, err
}

func (r *HoldRepo) GetByJobID(_ context.Context, jobID uuid.UUID) (*models.EscrowHold, error) {
	var out *models.EscrowHold
	r.s.read(func(st *state) {
		if h, ok := st.holds[jobID]; ok {
			out = &h
		}
	})
	if out == nil {
		return nil, models.ErrHoldNotFound
	}
	return out, nil
}

func (r *HoldRepo) GetByJobIDForUpdate(_ context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.EscrowHold, error) {
	var out *models.EscrowHold
	err := r.s.write(tx, func(st *state) error {
		h, ok := st.holds[jobID]
		if !ok {
			return models.ErrHoldNotFound
		}
		out = &h
		return nil
	})
	return out, err
}

func (r *HoldRepo) UpdateStatusTx(_ context.Context, tx pgx.Tx, jobID uuid.UUID, status string) error {
	return r.s.write(tx, func(st *state) error {
		h, ok := st.holds[jobID]
		if !ok {
			return models.ErrHoldNotFound
		}
		h.Status = status
		h.UpdatedAt = r.s.now()
		st.holds[jobID] = h
		return nil
	})
}

// --- payment intents and events ---

type IntentRepo struct{ s *Store }

func (r *IntentRepo) Create(ctx context.Context, pi *models.PaymentIntent) error {
	return r.s.autocommit(ctx, func(st *state) error {
		if _, ok := st.intents[pi.PaymentHash]; ok {
			return uniqueViolation("payment_intents_pkey")
		}
		pi.CreatedAt = r.s.now()
		st.intents[pi.PaymentHash] = *pi
		return nil
	})
}

func (r *IntentRepo) GetByHash(_ context.Context, paymentHash string) (*models.PaymentIntent, error) {
	var out *models.PaymentIntent
	r.s.read(func(st *state) {
		if pi, ok := st.intents[paymentHash]; ok {
			out = &pi
		}
	})
	if out == nil {
		return nil, models.ErrIntentNotFound
	}
	return out, nil
}

func (r *IntentRepo) MarkCompletedTx(_ context.Context, tx pgx.Tx, paymentHash string) (bool, error) {
	changed := false
	err := r.s.write(tx, func(st *state) error {
		pi, ok := st.intents[paymentHash]
		if !ok || pi.Status != models.IntentStatusPending {
			return nil
		}
		pi.Status = models.IntentStatusCompleted
		st.intents[paymentHash] = pi
		changed = true
		return nil
	})
	return changed, err
}

func (r *IntentRepo) CountPending(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	now := r.s.now()
	r.s.read(func(st *state) {
		for _, pi := range st.intents {
			if pi.UserID == userID && pi.Status == models.IntentStatusPending && !pi.Expired(now) {
				n++
			}
		}
	})
	return n, nil
}

type EventRepo struct{ s *Store }

func (r *EventRepo) InsertTx(_ context.Context, tx pgx.Tx, ev *models.PaymentEvent) error {
	return r.s.write(tx, func(st *state) error {
		if _, ok := st.events[ev.PaymentHash]; ok {
			return models.ErrDuplicatePayment
		}
		ev.CreatedAt = r.s.now()
		st.events[ev.PaymentHash] = *ev
		return nil
	})
}

func (r *EventRepo) ListRecent(_ context.Context, limit int) ([]*models.PaymentEvent, error) {
	var list []*models.PaymentEvent
	r.s.read(func(st *state) {
		for _, ev := range st.events {
			list = append(list, &ev)
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// --- profiles ---

type ProfileRepo struct{ s *Store }

func (r *ProfileRepo) CreateTx(_ context.Context, tx pgx.Tx, p *models.Profile) error {
	return r.s.write(tx, func(st *state) error {
		if _, ok := st.emails[p.Email]; ok {
			return uniqueViolation("profiles_email_key")
		}
		p.CreatedAt = r.s.now()
		st.profiles[p.ID] = *p
		st.emails[p.Email] = p.ID
		return nil
	})
}

func (r *ProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	var out *models.Profile
	r.s.read(func(st *state) {
		if p, ok := st.profiles[id]; ok {
			out = &p
		}
	})
	if out == nil {
		return nil, models.ErrProfileNotFound
	}
	return out, nil
}

func (r *ProfileRepo) GetByEmail(_ context.Context, email string) (*models.Profile, error) {
	var out *models.Profile
	r.s.read(func(st *state) {
		if id, ok := st.emails[email]; ok {
			p := st.profiles[id]
			out = &p
		}
	})
	if out == nil {
		return nil, models.ErrProfileNotFound
	}
	return out, nil
}

func (r *ProfileRepo) SetWalletKeys(ctx context.Context, id uuid.UUID, lnbitsID, adminKey, invoiceKey string) error {
	return r.s.autocommit(ctx, func(st *state) error {
		p, ok := st.profiles[id]
		if !ok {
			return models.ErrProfileNotFound
		}
		p.LNbitsID, p.LNbitsAdminKey, p.LNbitsInvoiceKey = &lnbitsID, &adminKey, &invoiceKey
		st.profiles[id] = p
		return nil
	})
}

// SetRole changes a profile's role. Admins are provisioned out of band.
func (r *ProfileRepo) SetRole(ctx context.Context, id uuid.UUID, role string) error {
	return r.s.autocommit(ctx, func(st *state) error {
		p, ok := st.profiles[id]
		if !ok {
			return models.ErrProfileNotFound
		}
		p.Role = role
		st.profiles[id] = p
		return nil
	})
}
