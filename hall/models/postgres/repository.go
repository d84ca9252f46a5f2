package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/pborman/uuid"

	"github.com/unionhall/hall-app/hall/database"
	"github.com/unionhall/hall-app/hall/models"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type executable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ models.Repository = &Repository{}

type Repository struct {
	queryable
	executable
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db, db}
}

func NewRepositoryTx(tx *sql.Tx) *Repository {
	return &Repository{tx, tx}
}

var bookColumns = []string{"id", "classification", "region", "agreement_type", "tier_count", "created_at"}

func (r *Repository) CreateBook(ctx context.Context, book models.Book) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO books
		(classification, region, agreement_type, tier_count, created_at) VALUES
		(%s, %s, %s, %s, NOW()) RETURNING id`,
		book.Classification, book.Region, string(book.Agreement), book.TierCount).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetBookByID(ctx context.Context, bookID uint) (*models.Book, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(bookColumns...).From("books")
	sb.Where(sb.Equal("id", bookID))

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)

	var book models.Book
	err := row.Scan(&book.ID, &book.Classification, &book.Region, &book.Agreement, &book.TierCount, &book.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &book, nil
}

func (r *Repository) GetBooksByClassification(ctx context.Context, classification string) ([]*models.Book, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(bookColumns...).From("books")
	sb.Where(sb.Equal("classification", classification))
	sb.OrderBy("id").Asc()

	query, args := sb.Build()
	return r.getBooks(ctx, query, args...)
}

func (r *Repository) ListBooks(ctx context.Context) ([]*models.Book, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(bookColumns...).From("books")
	sb.OrderBy("classification", "region").Asc()

	query, args := sb.Build()
	return r.getBooks(ctx, query, args...)
}

func (r *Repository) getBooks(ctx context.Context, query string, args ...interface{}) ([]*models.Book, error) {
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		var book models.Book
		if err = rows.Scan(&book.ID, &book.Classification, &book.Region, &book.Agreement, &book.TierCount, &book.CreatedAt); err != nil {
			return nil, err
		}
		books = append(books, &book)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return books, nil
}

var registrationColumns = []string{"id", "member_id", "book_id", "classification", "priority_key", "tier", "status",
	"exempt", "short_call_count", "last_resign_at", "overdue_at", "created_at", "updated_at"}

func (r *Repository) CreateRegistration(ctx context.Context, reg models.Registration) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO registrations
		(member_id, book_id, classification, priority_key, tier, status, exempt, short_call_count, last_resign_at, created_at, updated_at) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s, NOW(), NOW()) RETURNING id`,
		reg.MemberID, reg.BookID, reg.Classification, reg.PriorityKey, reg.Tier, string(reg.Status),
		reg.Exempt, reg.ShortCallCount, reg.LastResignAt).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if database.IsUniqueViolation(err) {
			return 0, models.ErrDuplicateRegistration
		}
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetRegistrationByID(ctx context.Context, id uint) (*models.Registration, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(registrationColumns...).From("registrations")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	return r.getRegistration(ctx, query, args...)
}

func (r *Repository) GetActiveRegistration(ctx context.Context, memberID uuid.UUID, classification string) (*models.Registration, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(registrationColumns...).From("registrations")
	sb.Where(
		sb.Equal("member_id", memberID),
		sb.Equal("classification", classification),
		sb.In("status", string(models.RegistrationActive), string(models.RegistrationDispatched)),
	)
	sb.Limit(1)

	query, args := sb.Build()
	return r.getRegistration(ctx, query, args...)
}

func (r *Repository) GetActiveRegistrationByMemberBook(ctx context.Context, memberID uuid.UUID, bookID uint) (*models.Registration, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(registrationColumns...).From("registrations")
	sb.Where(
		sb.Equal("member_id", memberID),
		sb.Equal("book_id", bookID),
		sb.In("status", string(models.RegistrationActive), string(models.RegistrationDispatched)),
	)
	sb.Limit(1)

	query, args := sb.Build()
	return r.getRegistration(ctx, query, args...)
}

func (r *Repository) GetActiveRegistrationsByBook(ctx context.Context, bookID uint) ([]*models.Registration, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(registrationColumns...).From("registrations")
	sb.Where(
		sb.Equal("book_id", bookID),
		sb.Equal("status", string(models.RegistrationActive)),
	)
	sb.OrderBy("priority_key").Asc()

	query, args := sb.Build()
	return r.getRegistrations(ctx, query, args...)
}

func (r *Repository) UpdateRegistrationStatusCheckStatus(ctx context.Context, id uint, current, new models.RegistrationStatus) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("registrations")
	ub.Set(
		ub.Assign("status", string(new)),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", id), ub.Equal("status", string(current)))

	return r.execExpectingMatch(ctx, ub, models.ErrRegistrationNotUpdated)
}

func (r *Repository) UpdateRegistrationResign(ctx context.Context, id uint, resignedAt time.Time) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("registrations")
	ub.Set(
		ub.Assign("last_resign_at", resignedAt),
		ub.Assign("overdue_at", nil),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", id), ub.Equal("status", string(models.RegistrationActive)))

	return r.execExpectingMatch(ctx, ub, models.ErrRegistrationNotUpdated)
}

func (r *Repository) UpdateRegistrationOverdue(ctx context.Context, id uint, overdueAt time.Time) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("registrations")
	ub.Set(
		ub.Assign("overdue_at", overdueAt),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", id))

	return r.execExpectingMatch(ctx, ub, models.ErrRegistrationNotUpdated)
}

func (r *Repository) GetMaxPrioritySequence(ctx context.Context, bookID uint, daySerial int64) (int64, error) {
	// The fractional part of the key is the same-day sequence; keys on
	// other days fall outside [daySerial, daySerial+1).
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("COALESCE(MAX((priority_key - FLOOR(priority_key)) * 1000000000), 0)::bigint")
	sb.From("registrations")
	sb.Where(
		sb.Equal("book_id", bookID),
		sb.GreaterEqualThan("priority_key", daySerial),
		sb.LessThan("priority_key", daySerial+1),
	)

	query, args := sb.Build()
	var seq int64
	if err := r.QueryRowContext(ctx, query, args...).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *Repository) GetOverdueRegistrations(ctx context.Context, bookID uint, cutoff time.Time) ([]*models.Registration, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(registrationColumns...).From("registrations")
	sb.Where(
		sb.Equal("book_id", bookID),
		sb.Equal("status", string(models.RegistrationActive)),
		sb.LessEqualThan("last_resign_at", cutoff),
	)
	sb.OrderBy("priority_key").Asc()

	query, args := sb.Build()
	return r.getRegistrations(ctx, query, args...)
}

func (r *Repository) getRegistration(ctx context.Context, query string, args ...interface{}) (*models.Registration, error) {
	row := r.QueryRowContext(ctx, query, args...)

	var (
		reg       models.Registration
		overdueAt sql.NullTime
	)
	err := row.Scan(&reg.ID, &reg.MemberID, &reg.BookID, &reg.Classification, &reg.PriorityKey, &reg.Tier, &reg.Status,
		&reg.Exempt, &reg.ShortCallCount, &reg.LastResignAt, &overdueAt, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	reg.OverdueAt = overdueAt.Time

	return &reg, nil
}

func (r *Repository) getRegistrations(ctx context.Context, query string, args ...interface{}) ([]*models.Registration, error) {
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*models.Registration
	for rows.Next() {
		var (
			reg       models.Registration
			overdueAt sql.NullTime
		)
		if err = rows.Scan(&reg.ID, &reg.MemberID, &reg.BookID, &reg.Classification, &reg.PriorityKey, &reg.Tier, &reg.Status,
			&reg.Exempt, &reg.ShortCallCount, &reg.LastResignAt, &overdueAt, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		reg.OverdueAt = overdueAt.Time
		regs = append(regs, &reg)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return regs, nil
}

func (r *Repository) CreateRegistrationActivity(ctx context.Context, activity models.RegistrationActivity) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO registration_activities
		(registration_id, member_id, book_id, kind, detail, recorded_at) VALUES
		(%s, %s, %s, %s, %s, %s) RETURNING id`,
		activity.RegistrationID, activity.MemberID, activity.BookID,
		activity.Kind, activity.Detail, activity.RecordedAt).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetActivitiesByRegistration(ctx context.Context, registrationID uint) ([]*models.RegistrationActivity, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "registration_id", "member_id", "book_id", "kind", "detail", "recorded_at")
	sb.From("registration_activities").Where(sb.Equal("registration_id", registrationID))
	sb.OrderBy("recorded_at").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []*models.RegistrationActivity
	for rows.Next() {
		var a models.RegistrationActivity
		if err = rows.Scan(&a.ID, &a.RegistrationID, &a.MemberID, &a.BookID, &a.Kind, &a.Detail, &a.RecordedAt); err != nil {
			return nil, err
		}
		activities = append(activities, &a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return activities, nil
}

var laborRequestColumns = []string{"id", "book_id", "employer_id", "worker_count", "filled_count",
	"agreement_type", "by_name", "named_member_id", "start_date", "expected_end_date",
	"submitted_at", "process_after", "status"}

func (r *Repository) CreateLaborRequest(ctx context.Context, req models.LaborRequest) (uint, error) {
	var named interface{}
	if req.NamedMemberID != nil {
		named = req.NamedMemberID
	}
	query, args := sqlbuilder.Buildf(`INSERT INTO labor_requests
		(book_id, employer_id, worker_count, filled_count, agreement_type, by_name, named_member_id, start_date, expected_end_date, submitted_at, process_after, status) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		req.BookID, req.EmployerID, req.WorkerCount, req.FilledCount, string(req.Agreement),
		req.ByName, named, req.StartDate, req.ExpectedEnd, req.SubmittedAt, req.ProcessAfter, string(req.Status)).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetLaborRequestByID(ctx context.Context, id uint) (*models.LaborRequest, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(laborRequestColumns...).From("labor_requests")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)

	req, err := scanLaborRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

func (r *Repository) GetOpenLaborRequestsByBook(ctx context.Context, bookID uint, processOnOrBefore time.Time) ([]*models.LaborRequest, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(laborRequestColumns...).From("labor_requests")
	sb.Where(
		sb.Equal("book_id", bookID),
		sb.Equal("status", string(models.RequestOpen)),
		sb.LessEqualThan("process_after", processOnOrBefore),
	)
	sb.OrderBy("submitted_at").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*models.LaborRequest
	for rows.Next() {
		req, err := scanLaborRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return reqs, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanLaborRequest(row scannable) (*models.LaborRequest, error) {
	var (
		req   models.LaborRequest
		named sql.NullString
	)
	err := row.Scan(&req.ID, &req.BookID, &req.EmployerID, &req.WorkerCount, &req.FilledCount,
		&req.Agreement, &req.ByName, &named, &req.StartDate, &req.ExpectedEnd,
		&req.SubmittedAt, &req.ProcessAfter, &req.Status)
	if err != nil {
		return nil, err
	}
	if named.Valid {
		req.NamedMemberID = uuid.Parse(named.String)
	}
	return &req, nil
}

func (r *Repository) UpdateLaborRequestStatusCheckStatus(ctx context.Context, id uint, current, new models.RequestStatus) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("labor_requests")
	ub.Set(ub.Assign("status", string(new)))
	ub.Where(ub.Equal("id", id), ub.Equal("status", string(current)))

	return r.execExpectingMatch(ctx, ub, models.ErrRequestNotUpdated)
}

func (r *Repository) IncrementFilledCount(ctx context.Context, id uint) (int, error) {
	query, args := sqlbuilder.Buildf(
		`UPDATE labor_requests SET filled_count = filled_count + 1 WHERE id = %s RETURNING filled_count`, id).
		BuildWithFlavor(sqlFlavor)

	var count int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) CreateJobBid(ctx context.Context, bid models.JobBid) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO job_bids
		(request_id, member_id, submitted_at, outcome) VALUES
		(%s, %s, %s, %s) RETURNING id`,
		bid.RequestID, bid.MemberID, bid.SubmittedAt, string(bid.Outcome)).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetJobBidByID(ctx context.Context, id uint) (*models.JobBid, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "request_id", "member_id", "submitted_at", "outcome")
	sb.From("job_bids").Where(sb.Equal("id", id))

	query, args := sb.Build()
	var bid models.JobBid
	err := r.QueryRowContext(ctx, query, args...).Scan(&bid.ID, &bid.RequestID, &bid.MemberID, &bid.SubmittedAt, &bid.Outcome)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &bid, nil
}

func (r *Repository) GetPendingBidsByRequest(ctx context.Context, requestID uint) ([]*models.JobBid, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "request_id", "member_id", "submitted_at", "outcome")
	sb.From("job_bids")
	sb.Where(
		sb.Equal("request_id", requestID),
		sb.Equal("outcome", string(models.BidPending)),
	)
	sb.OrderBy("submitted_at").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*models.JobBid
	for rows.Next() {
		var bid models.JobBid
		if err = rows.Scan(&bid.ID, &bid.RequestID, &bid.MemberID, &bid.SubmittedAt, &bid.Outcome); err != nil {
			return nil, err
		}
		bids = append(bids, &bid)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return bids, nil
}

func (r *Repository) UpdateJobBidOutcomeCheckOutcome(ctx context.Context, id uint, current, new models.BidOutcome) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("job_bids")
	ub.Set(ub.Assign("outcome", string(new)))
	ub.Where(ub.Equal("id", id), ub.Equal("outcome", string(current)))

	return r.execExpectingMatch(ctx, ub, models.ErrBidNotUpdated)
}

func (r *Repository) CreateBidRejection(ctx context.Context, memberID uuid.UUID, resolvedAt time.Time) error {
	query, args := sqlbuilder.Buildf(
		`INSERT INTO bid_rejections (member_id, resolved_at) VALUES (%s, %s)`,
		memberID, resolvedAt).BuildWithFlavor(sqlFlavor)
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) GetBidRejectionTimes(ctx context.Context, memberID uuid.UUID, since time.Time) ([]time.Time, error) {
	sb := sqlFlavor.NewSelectBuilder().Select("resolved_at").From("bid_rejections")
	sb.Where(
		sb.Equal("member_id", memberID),
		sb.GreaterEqualThan("resolved_at", since),
	)
	sb.OrderBy("resolved_at").Desc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err = rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return times, nil
}

var dispatchColumns = []string{"id", "registration_id", "request_id", "member_id", "employer_id",
	"start_date", "expected_end_date", "actual_end_date", "short_call", "by_name",
	"status", "outcome", "outcome_kind", "created_at", "updated_at"}

func (r *Repository) CreateDispatch(ctx context.Context, d models.Dispatch) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO dispatches
		(registration_id, request_id, member_id, employer_id, start_date, expected_end_date, short_call, by_name, status, outcome, outcome_kind, created_at, updated_at) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, NOW(), NOW()) RETURNING id`,
		d.RegistrationID, d.RequestID, d.MemberID, d.EmployerID, d.StartDate, d.ExpectedEnd,
		d.ShortCall, d.ByName, string(d.Status), string(d.Outcome), string(d.OutcomeKind)).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetDispatchByID(ctx context.Context, id uint) (*models.Dispatch, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(dispatchColumns...).From("dispatches")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)

	d, err := scanDispatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (r *Repository) GetDispatchesByRequest(ctx context.Context, requestID uint) ([]*models.Dispatch, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(dispatchColumns...).From("dispatches")
	sb.Where(sb.Equal("request_id", requestID))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	return r.getDispatches(ctx, query, args...)
}

func (r *Repository) GetDispatchesByMember(ctx context.Context, memberID uuid.UUID) ([]*models.Dispatch, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(dispatchColumns...).From("dispatches")
	sb.Where(sb.Equal("member_id", memberID))
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	return r.getDispatches(ctx, query, args...)
}

func (r *Repository) getDispatches(ctx context.Context, query string, args ...interface{}) ([]*models.Dispatch, error) {
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dispatches []*models.Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		dispatches = append(dispatches, d)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return dispatches, nil
}

func scanDispatch(row scannable) (*models.Dispatch, error) {
	var (
		d         models.Dispatch
		actualEnd sql.NullTime
	)
	err := row.Scan(&d.ID, &d.RegistrationID, &d.RequestID, &d.MemberID, &d.EmployerID,
		&d.StartDate, &d.ExpectedEnd, &actualEnd, &d.ShortCall, &d.ByName,
		&d.Status, &d.Outcome, &d.OutcomeKind, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ActualEnd = actualEnd.Time
	return &d, nil
}

func (r *Repository) UpdateDispatchStatusCheckStatus(ctx context.Context, id uint, current, new models.DispatchStatus) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("dispatches")
	ub.Set(
		ub.Assign("status", string(new)),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", id), ub.Equal("status", string(current)))

	return r.execExpectingMatch(ctx, ub, models.ErrDispatchNotUpdated)
}

func (r *Repository) RecordDispatchOutcome(ctx context.Context, id uint, outcome models.DispatchOutcome, kind models.OutcomeKind, actualEnd time.Time) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("dispatches")
	ub.Set(
		ub.Assign("outcome", string(outcome)),
		ub.Assign("outcome_kind", string(kind)),
		ub.Assign("actual_end_date", actualEnd),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	// Outcomes are terminal; the guard makes re-runs no-ops that surface
	// as ErrOutcomeAlreadySet instead of silently overwriting.
	ub.Where(ub.Equal("id", id), ub.Equal("outcome", string(models.OutcomePending)))

	return r.execExpectingMatch(ctx, ub, models.ErrOutcomeAlreadySet)
}

func (r *Repository) CountDispatchesByEmployer(ctx context.Context, employerID uuid.UUID, since time.Time) (int, int, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("COUNT(1)", "COUNT(1) FILTER (WHERE by_name)")
	sb.From("dispatches")
	sb.Where(
		sb.Equal("employer_id", employerID),
		sb.Equal("status", string(models.DispatchAccepted)),
		sb.GreaterEqualThan("created_at", since),
	)

	query, args := sb.Build()
	var total, byName int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&total, &byName); err != nil {
		return 0, 0, err
	}
	return total, byName, nil
}

func (r *Repository) CreateCheckMark(ctx context.Context, mark models.CheckMark) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO check_marks
		(member_id, book_id, reason, issued_at) VALUES
		(%s, %s, %s, %s) RETURNING id`,
		mark.MemberID, mark.BookID, mark.Reason, mark.IssuedAt).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) CountCheckMarks(ctx context.Context, memberID uuid.UUID, bookID uint) (int, error) {
	sb := sqlFlavor.NewSelectBuilder().Select("COUNT(1)").From("check_marks")
	sb.Where(
		sb.Equal("member_id", memberID),
		sb.Equal("book_id", bookID),
	)

	query, args := sb.Build()
	var count int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}

func (r *Repository) GetCheckMarkCountsByMember(ctx context.Context, memberID uuid.UUID) (map[uint]int, error) {
	sb := sqlFlavor.NewSelectBuilder().Select("book_id", "COUNT(1)").From("check_marks")
	sb.Where(sb.Equal("member_id", memberID)).GroupBy("book_id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uint]int)
	for rows.Next() {
		var (
			bookID uint
			count  int
		)
		if err = rows.Scan(&bookID, &count); err != nil {
			return nil, err
		}
		counts[bookID] = count
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *Repository) CreateExemption(ctx context.Context, e models.Exemption) (uint, error) {
	var end interface{}
	if !e.EndDate.IsZero() {
		end = e.EndDate
	}
	query, args := sqlbuilder.Buildf(`INSERT INTO exemptions
		(member_id, reason, unavailable, start_date, end_date) VALUES
		(%s, %s, %s, %s, %s) RETURNING id`,
		e.MemberID, e.Reason, e.Unavailable, e.StartDate, end).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetActiveExemptions(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]*models.Exemption, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "member_id", "reason", "unavailable", "start_date", "end_date")
	sb.From("exemptions")
	sb.Where(
		sb.Equal("member_id", memberID),
		sb.LessEqualThan("start_date", asOf),
		sb.Or(sb.IsNull("end_date"), sb.GreaterEqualThan("end_date", asOf)),
	)

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exemptions []*models.Exemption
	for rows.Next() {
		var (
			e   models.Exemption
			end sql.NullTime
		)
		if err = rows.Scan(&e.ID, &e.MemberID, &e.Reason, &e.Unavailable, &e.StartDate, &end); err != nil {
			return nil, err
		}
		e.EndDate = end.Time
		exemptions = append(exemptions, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return exemptions, nil
}

var blackoutColumns = []string{"id", "member_id", "employer_id", "dispatch_id", "start_date", "end_date"}

func (r *Repository) CreateBlackoutPeriod(ctx context.Context, b models.BlackoutPeriod) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO blackout_periods
		(member_id, employer_id, dispatch_id, start_date, end_date) VALUES
		(%s, %s, %s, %s, %s) RETURNING id`,
		b.MemberID, b.EmployerID, b.DispatchID, b.StartDate, b.EndDate).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetActiveBlackout(ctx context.Context, memberID, employerID uuid.UUID, asOf time.Time) (*models.BlackoutPeriod, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(blackoutColumns...).From("blackout_periods")
	sb.Where(
		sb.Equal("member_id", memberID),
		sb.Equal("employer_id", employerID),
		sb.LessEqualThan("start_date", asOf),
		sb.GreaterEqualThan("end_date", asOf),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var b models.BlackoutPeriod
	err := r.QueryRowContext(ctx, query, args...).Scan(&b.ID, &b.MemberID, &b.EmployerID, &b.DispatchID, &b.StartDate, &b.EndDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &b, nil
}

func (r *Repository) GetActiveBlackoutsByMember(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]*models.BlackoutPeriod, error) {
	sb := sqlFlavor.NewSelectBuilder().Select(blackoutColumns...).From("blackout_periods")
	sb.Where(
		sb.Equal("member_id", memberID),
		sb.LessEqualThan("start_date", asOf),
		sb.GreaterEqualThan("end_date", asOf),
	)
	sb.OrderBy("end_date").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blackouts []*models.BlackoutPeriod
	for rows.Next() {
		var b models.BlackoutPeriod
		if err = rows.Scan(&b.ID, &b.MemberID, &b.EmployerID, &b.DispatchID, &b.StartDate, &b.EndDate); err != nil {
			return nil, err
		}
		blackouts = append(blackouts, &b)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return blackouts, nil
}

func (r *Repository) execExpectingMatch(ctx context.Context, ub *sqlbuilder.UpdateBuilder, notUpdated error) error {
	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return notUpdated
	}
	if affected > 1 {
		return fmt.Errorf("expected to affect 1 row, affected %d", affected)
	}

	return nil
}
