// Package postgrestest provides CRUD utilities for the postgres database.
// These utilities allow the caller to modify the database in ways that we
// wouldn't want to permit in the main code path.
// To protect against usage in non-test code, all methods accept a
// *testing.T struct.
package postgrestest

import (
	"database/sql"
	"testing"

	"github.com/huandu/go-sqlbuilder"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/unionhall/hall-app/hall/models"
)

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

func CreateBook(t *testing.T, db *sql.DB, book *models.Book) {
	query, args := sqlbuilder.Buildf(`INSERT INTO books
		(classification, region, agreement_type, tier_count, created_at) VALUES
		(%s, %s, %s, %s, NOW()) RETURNING id`,
		book.Classification, book.Region, string(book.Agreement), book.TierCount).
		BuildWithFlavor(sqlFlavor)
	err := db.QueryRow(query, args...).Scan(&book.ID)
	assert.NoError(t, err)
}

func DeleteBook(t *testing.T, db *sql.DB, bookID uint) {
	for _, table := range []string{"registration_activities", "check_marks", "registrations"} {
		dlt := sqlFlavor.NewDeleteBuilder().DeleteFrom(table)
		dlt.Where(dlt.Equal("book_id", bookID))
		query, args := dlt.Build()
		_, err := db.Exec(query, args...)
		assert.NoError(t, err)
	}

	dlt := sqlFlavor.NewDeleteBuilder().DeleteFrom("books")
	dlt.Where(dlt.Equal("id", bookID))
	query, args := dlt.Build()
	_, err := db.Exec(query, args...)
	assert.NoError(t, err)
}

func CreateRegistration(t *testing.T, db *sql.DB, reg *models.Registration) {
	query, args := sqlbuilder.Buildf(`INSERT INTO registrations
		(member_id, book_id, classification, priority_key, tier, status, exempt, short_call_count, last_resign_at, created_at, updated_at) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s, NOW(), NOW()) RETURNING id`,
		reg.MemberID, reg.BookID, reg.Classification, reg.PriorityKey, reg.Tier, string(reg.Status),
		reg.Exempt, reg.ShortCallCount, reg.LastResignAt).
		BuildWithFlavor(sqlFlavor)
	err := db.QueryRow(query, args...).Scan(&reg.ID)
	assert.NoError(t, err)
}

func GetRegistrationStatus(t *testing.T, db *sql.DB, id uint) models.RegistrationStatus {
	sb := sqlFlavor.NewSelectBuilder().Select("status").From("registrations")
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var status models.RegistrationStatus
	err := db.QueryRow(query, args...).Scan(&status)
	assert.NoError(t, err)

	return status
}

func CreateLaborRequest(t *testing.T, db *sql.DB, req *models.LaborRequest) {
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
	err := db.QueryRow(query, args...).Scan(&req.ID)
	assert.NoError(t, err)
}

func DeleteLaborRequestsByEmployer(t *testing.T, db *sql.DB, employerID uuid.UUID) {
	dlt := sqlFlavor.NewDeleteBuilder().DeleteFrom("labor_requests")
	dlt.Where(dlt.Equal("employer_id", employerID))
	query, args := dlt.Build()
	_, err := db.Exec(query, args...)
	assert.NoError(t, err)
}

func DeleteDispatchesByMember(t *testing.T, db *sql.DB, memberID uuid.UUID) {
	dlt := sqlFlavor.NewDeleteBuilder().DeleteFrom("dispatches")
	dlt.Where(dlt.Equal("member_id", memberID))
	query, args := dlt.Build()
	_, err := db.Exec(query, args...)
	assert.NoError(t, err)
}

func DeleteEnforcementByMember(t *testing.T, db *sql.DB, memberID uuid.UUID) {
	for _, table := range []string{"check_marks", "exemptions", "blackout_periods", "bid_rejections"} {
		dlt := sqlFlavor.NewDeleteBuilder().DeleteFrom(table)
		dlt.Where(dlt.Equal("member_id", memberID))
		query, args := dlt.Build()
		_, err := db.Exec(query, args...)
		assert.NoError(t, err)
	}
}
