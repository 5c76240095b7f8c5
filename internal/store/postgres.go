package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juju/errors"

	"campusevents/internal/model"
)

// Postgres codes we translate into store errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgUndefinedTable      = "42P01"
)

// Postgres persists everything in Postgres using database/sql and pgx.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close closes the underlying pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Ping is used by the health endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// translate maps driver errors onto store errors; conflict is what a
// unique violation means for the calling operation.
func translate(err error, conflict error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if conflict != nil {
				return conflict
			}
		case pgForeignKeyViolation:
			return errors.NewNotFound(err, pgErr.Detail)
		case pgUndefinedTable:
			return errors.Annotate(ErrTableMissing, pgErr.Message)
		}
	}
	return errors.Trace(err)
}

// -------- Events --------

const eventColumns = `e.id, e.title, e.description, e.date::text, e.time, e.location, e.department,
	e.max_seats, e.price, COALESCE(e.image_url, ''), COALESCE(e.created_by, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, withCount bool) (model.Event, error) {
	var evt model.Event
	dest := []any{
		&evt.ID, &evt.Title, &evt.Description, &evt.Date, &evt.Time, &evt.Location,
		&evt.Department, &evt.MaxSeats, &evt.Price, &evt.ImageURL, &evt.CreatedBy,
	}
	if withCount {
		dest = append(dest, &evt.RegisteredCount)
	}
	err := row.Scan(dest...)
	return evt, err
}

// ListEvents returns all events ordered by date with their completed
// registration counts.
func (p *Postgres) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+eventColumns+`,
			(SELECT COUNT(*) FROM event_registrations r
			 WHERE r.event_id = e.id AND r.payment_status = 'completed')
		FROM events e
		ORDER BY e.date ASC, e.time ASC, e.title ASC
	`)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		evt, err := scanEvent(rows, true)
		if err != nil {
			return nil, errors.Trace(err)
		}
		events = append(events, evt)
	}
	return events, errors.Trace(rows.Err())
}

// GetEvent returns a single event with its registration count.
func (p *Postgres) GetEvent(ctx context.Context, id string) (model.Event, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`,
			(SELECT COUNT(*) FROM event_registrations r
			 WHERE r.event_id = e.id AND r.payment_status = 'completed')
		FROM events e WHERE e.id = $1
	`, id)
	evt, err := scanEvent(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, errors.NotFoundf("event %q", id)
	}
	return evt, translate(err, nil)
}

// CreateEvent inserts a new event and assigns its id.
func (p *Postgres) CreateEvent(ctx context.Context, evt model.Event) (model.Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO events (id, title, description, date, time, location, department, max_seats, price, image_url, created_by)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''))
	`, evt.ID, evt.Title, evt.Description, evt.Date, evt.Time, evt.Location, evt.Department,
		evt.MaxSeats, evt.Price, evt.ImageURL, evt.CreatedBy)
	if err != nil {
		return model.Event{}, translate(err, errors.AlreadyExistsf("event %q", evt.ID))
	}
	evt.RegisteredCount = 0
	return evt, nil
}

// UpdateEvent applies a partial update.
func (p *Postgres) UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) error {
	sets := []string{}
	args := []any{id}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+itoa(len(args)))
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Date != nil {
		args = append(args, *upd.Date)
		sets = append(sets, "date = $"+itoa(len(args))+"::date")
	}
	if upd.Time != nil {
		add("time", *upd.Time)
	}
	if upd.Location != nil {
		add("location", *upd.Location)
	}
	if upd.Department != nil {
		add("department", *upd.Department)
	}
	if upd.MaxSeats != nil {
		add("max_seats", *upd.MaxSeats)
	}
	if upd.Price != nil {
		add("price", *upd.Price)
	}
	if upd.ImageURL != nil {
		add("image_url", *upd.ImageURL)
	}
	if len(sets) == 0 {
		_, err := p.GetEvent(ctx, id)
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE events SET `+strings.Join(sets, ", ")+`, updated_at = NOW() WHERE id = $1`, args...)
	return affectedOne(res, err, "event", id)
}

// DeleteEvent removes an event; registrations and attendance cascade.
func (p *Postgres) DeleteEvent(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	return affectedOne(res, err, "event", id)
}

// -------- Registrations --------

// ReserveSeat locks the event row so that concurrent reservations for the
// same event are serialized, then checks uniqueness and capacity.
func (p *Postgres) ReserveSeat(ctx context.Context, eventID, userID string) (model.Registration, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Registration{}, translate(err, nil)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeats int
	err = tx.QueryRowContext(ctx, `SELECT max_seats FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&maxSeats)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Registration{}, errors.NotFoundf("event %q", eventID)
	}
	if err != nil {
		return model.Registration{}, translate(err, nil)
	}

	var mine, active int
	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE user_id = $2),
			COUNT(*)
		FROM event_registrations
		WHERE event_id = $1 AND payment_status IN ('pending', 'completed')
	`, eventID, userID).Scan(&mine, &active)
	if err != nil {
		return model.Registration{}, translate(err, nil)
	}
	if mine > 0 {
		return model.Registration{}, ErrAlreadyRegistered
	}
	if active >= maxSeats {
		return model.Registration{}, ErrEventFull
	}

	reg := model.Registration{
		ID:            uuid.NewString(),
		EventID:       eventID,
		UserID:        userID,
		PaymentStatus: model.PaymentPending,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO event_registrations (id, event_id, user_id, payment_status)
		VALUES ($1, $2, $3, $4)
		RETURNING registration_date
	`, reg.ID, reg.EventID, reg.UserID, string(reg.PaymentStatus)).Scan(&reg.RegisteredAt)
	if err != nil {
		return model.Registration{}, translate(err, ErrAlreadyRegistered)
	}
	if err := tx.Commit(); err != nil {
		return model.Registration{}, translate(err, ErrAlreadyRegistered)
	}
	return reg, nil
}

// SetPaymentStatus moves a registration to its next payment state.
func (p *Postgres) SetPaymentStatus(ctx context.Context, registrationID string, status model.PaymentStatus, paymentID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE event_registrations
		SET payment_status = $2, payment_id = COALESCE(NULLIF($3, ''), payment_id)
		WHERE id = $1
	`, registrationID, string(status), paymentID)
	return affectedOne(res, err, "registration", registrationID)
}

// FindRegistration returns the active registration for the pair, or nil.
func (p *Postgres) FindRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	var reg model.Registration
	err := p.db.QueryRowContext(ctx, `
		SELECT id, event_id, user_id, payment_status, COALESCE(payment_id, ''), registration_date
		FROM event_registrations
		WHERE event_id = $1 AND user_id = $2 AND payment_status IN ('pending', 'completed')
	`, eventID, userID).Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.PaymentStatus, &reg.PaymentID, &reg.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, nil)
	}
	return &reg, nil
}

// DeleteRegistration removes the active registration row for the pair.
func (p *Postgres) DeleteRegistration(ctx context.Context, eventID, userID string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM event_registrations
		WHERE event_id = $1 AND user_id = $2 AND payment_status IN ('pending', 'completed')`,
		eventID, userID)
	if err != nil {
		return translate(err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Trace(err)
	}
	if n == 0 {
		return errors.NotFoundf("registration for event %q", eventID)
	}
	return nil
}

// ListUserRegistrations returns events with a completed registration by userID.
func (p *Postgres) ListUserRegistrations(ctx context.Context, userID string) ([]model.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+eventColumns+`,
			(SELECT COUNT(*) FROM event_registrations c
			 WHERE c.event_id = e.id AND c.payment_status = 'completed')
		FROM event_registrations r
		JOIN events e ON e.id = r.event_id
		WHERE r.user_id = $1 AND r.payment_status = 'completed'
		ORDER BY e.date ASC, e.time ASC
	`, userID)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		evt, err := scanEvent(rows, true)
		if err != nil {
			return nil, errors.Trace(err)
		}
		events = append(events, evt)
	}
	return events, errors.Trace(rows.Err())
}

// -------- Attendance --------

// InsertAttendance records attendance; the unique (event_id, user_id)
// constraint rejects duplicate scans.
func (p *Postgres) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	var qr any
	if len(rec.QRData) > 0 {
		qr = string(rec.QRData)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance (id, event_id, user_id, marked_by, qr_data, marked_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5::jsonb, $6)
	`, rec.ID, rec.EventID, rec.UserID, rec.MarkedBy, qr, rec.MarkedAt)
	if err != nil {
		return model.AttendanceRecord{}, translate(err, ErrDuplicateAttendance)
	}
	return rec, nil
}

// FindAttendance returns the record for the pair, or nil.
func (p *Postgres) FindAttendance(ctx context.Context, eventID, userID string) (*model.AttendanceRecord, error) {
	var (
		rec model.AttendanceRecord
		qr  []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, event_id, user_id, COALESCE(marked_by, ''), qr_data, marked_at
		FROM attendance WHERE event_id = $1 AND user_id = $2
	`, eventID, userID).Scan(&rec.ID, &rec.EventID, &rec.UserID, &rec.MarkedBy, &qr, &rec.MarkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, nil)
	}
	rec.QRData = qr
	return &rec, nil
}

// ListUserAttendance returns the ids of events userID attended.
func (p *Postgres) ListUserAttendance(ctx context.Context, userID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT event_id FROM attendance WHERE user_id = $1 ORDER BY marked_at ASC`, userID)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Trace(err)
		}
		ids = append(ids, id)
	}
	return ids, errors.Trace(rows.Err())
}

// ListEventAttendance returns an event's attendance joined with profiles.
func (p *Postgres) ListEventAttendance(ctx context.Context, eventID string) ([]model.AttendanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT a.id, a.event_id, a.user_id, COALESCE(a.marked_by, ''), a.qr_data, a.marked_at,
			p.name, COALESCE(p.roll_number, ''), p.email
		FROM attendance a
		JOIN profiles p ON p.id = a.user_id
		WHERE a.event_id = $1
		ORDER BY a.marked_at ASC
	`, eventID)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		var (
			rec model.AttendanceRecord
			qr  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.UserID, &rec.MarkedBy, &qr, &rec.MarkedAt,
			&rec.Name, &rec.RollNumber, &rec.Email); err != nil {
			return nil, errors.Trace(err)
		}
		rec.QRData = qr
		records = append(records, rec)
	}
	return records, errors.Trace(rows.Err())
}

// -------- Food stalls & reviews --------

// ListFoodStalls returns stalls with their reviews nested; derived rating
// fields are left for the caller to compute.
func (p *Postgres) ListFoodStalls(ctx context.Context, activeOnly bool) ([]model.FoodStall, error) {
	query := `
		SELECT id, name, description, COALESCE(image_url, ''), menu, COALESCE(location, ''), contact_info, is_active
		FROM food_stalls`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var stalls []model.FoodStall
	index := map[string]int{}
	for rows.Next() {
		var (
			st            model.FoodStall
			menu, contact []byte
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Description, &st.ImageURL, &menu, &st.Location, &contact, &st.IsActive); err != nil {
			return nil, errors.Trace(err)
		}
		if len(menu) > 0 {
			if err := json.Unmarshal(menu, &st.Menu); err != nil {
				return nil, errors.Annotatef(err, "decode menu of stall %q", st.ID)
			}
		}
		if len(contact) > 0 && string(contact) != "null" {
			if err := json.Unmarshal(contact, &st.ContactInfo); err != nil {
				return nil, errors.Annotatef(err, "decode contact info of stall %q", st.ID)
			}
		}
		index[st.ID] = len(stalls)
		stalls = append(stalls, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if len(stalls) == 0 {
		return stalls, nil
	}

	reviews, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.stall_id, r.user_id, COALESCE(p.name, 'Anonymous'), r.rating, COALESCE(r.comment, ''), r.created_at
		FROM stall_reviews r
		LEFT JOIN profiles p ON p.id = r.user_id
		ORDER BY r.created_at ASC
	`)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer reviews.Close()
	for reviews.Next() {
		var rev model.Review
		if err := reviews.Scan(&rev.ID, &rev.StallID, &rev.UserID, &rev.UserName, &rev.Rating, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, errors.Trace(err)
		}
		if i, ok := index[rev.StallID]; ok {
			stalls[i].Reviews = append(stalls[i].Reviews, rev)
		}
	}
	return stalls, errors.Trace(reviews.Err())
}

func encodeStall(st model.FoodStall) (menu string, contact any, err error) {
	if st.Menu == nil {
		st.Menu = []model.MenuItem{}
	}
	m, err := json.Marshal(st.Menu)
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	if len(st.ContactInfo) > 0 {
		c, err := json.Marshal(st.ContactInfo)
		if err != nil {
			return "", nil, errors.Trace(err)
		}
		contact = string(c)
	}
	return string(m), contact, nil
}

// CreateFoodStall inserts a stall.
func (p *Postgres) CreateFoodStall(ctx context.Context, st model.FoodStall) (model.FoodStall, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	menu, contact, err := encodeStall(st)
	if err != nil {
		return model.FoodStall{}, err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO food_stalls (id, name, description, image_url, menu, location, contact_info, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5::jsonb, NULLIF($6, ''), $7::jsonb, $8)
	`, st.ID, st.Name, st.Description, st.ImageURL, menu, st.Location, contact, st.IsActive)
	if err != nil {
		return model.FoodStall{}, translate(err, nil)
	}
	return st, nil
}

// UpdateFoodStall replaces a stall's editable fields.
func (p *Postgres) UpdateFoodStall(ctx context.Context, st model.FoodStall) error {
	menu, contact, err := encodeStall(st)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE food_stalls
		SET name = $2, description = $3, image_url = NULLIF($4, ''), menu = $5::jsonb,
			location = NULLIF($6, ''), contact_info = $7::jsonb, is_active = $8, updated_at = NOW()
		WHERE id = $1
	`, st.ID, st.Name, st.Description, st.ImageURL, menu, st.Location, contact, st.IsActive)
	return affectedOne(res, err, "food stall", st.ID)
}

// InsertReview stores a review; one per (stall, user).
func (p *Postgres) InsertReview(ctx context.Context, rev model.Review) (model.Review, error) {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO stall_reviews (id, stall_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING created_at
	`, rev.ID, rev.StallID, rev.UserID, rev.Rating, rev.Comment).Scan(&rev.CreatedAt)
	if err != nil {
		return model.Review{}, translate(err, ErrDuplicateReview)
	}
	return rev, nil
}

// FindReview returns the user's review of the stall, or nil.
func (p *Postgres) FindReview(ctx context.Context, stallID, userID string) (*model.Review, error) {
	var rev model.Review
	err := p.db.QueryRowContext(ctx, `
		SELECT id, stall_id, user_id, rating, COALESCE(comment, ''), created_at
		FROM stall_reviews WHERE stall_id = $1 AND user_id = $2
	`, stallID, userID).Scan(&rev.ID, &rev.StallID, &rev.UserID, &rev.Rating, &rev.Comment, &rev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, nil)
	}
	return &rev, nil
}

// -------- Profiles --------

const profileColumns = `id, name, email, role, COALESCE(roll_number, ''), COALESCE(mobile_number, ''),
	otp_enabled, COALESCE(avatar_url, ''), password_hash, created_at`

func scanProfile(row rowScanner) (model.Profile, error) {
	var pr model.Profile
	err := row.Scan(&pr.ID, &pr.Name, &pr.Email, &pr.Role, &pr.RollNumber, &pr.MobileNumber,
		&pr.OTPEnabled, &pr.AvatarURL, &pr.PasswordHash, &pr.CreatedAt)
	return pr, err
}

// CreateProfile inserts a profile; email and roll number are unique.
func (p *Postgres) CreateProfile(ctx context.Context, pr model.Profile) (model.Profile, error) {
	if pr.ID == "" {
		pr.ID = uuid.NewString()
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, name, email, role, roll_number, mobile_number, otp_enabled, avatar_url, password_hash)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), $9)
		RETURNING created_at
	`, pr.ID, pr.Name, pr.Email, string(pr.Role), pr.RollNumber, pr.MobileNumber, pr.OTPEnabled, pr.AvatarURL, pr.PasswordHash).Scan(&pr.CreatedAt)
	if err != nil {
		return model.Profile{}, translate(err, ErrDuplicateProfile)
	}
	return pr, nil
}

// GetProfile returns a profile by id.
func (p *Postgres) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	pr, err := scanProfile(p.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, errors.NotFoundf("profile %q", id)
	}
	return pr, translate(err, nil)
}

func (p *Postgres) findProfile(ctx context.Context, where string, args ...any) (*model.Profile, error) {
	pr, err := scanProfile(p.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE `+where+` LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, nil)
	}
	return &pr, nil
}

// FindProfileByEmail matches email case-insensitively.
func (p *Postgres) FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return p.findProfile(ctx, `lower(email) = lower($1)`, email)
}

// FindProfileByRollNumber matches a student's roll number.
func (p *Postgres) FindProfileByRollNumber(ctx context.Context, rollNumber string) (*model.Profile, error) {
	return p.findProfile(ctx, `roll_number = $1`, rollNumber)
}

// FindProfileByIdentifier matches email, mobile number or roll number.
func (p *Postgres) FindProfileByIdentifier(ctx context.Context, identifier string) (*model.Profile, error) {
	return p.findProfile(ctx, `lower(email) = lower($1) OR mobile_number = $1 OR roll_number = $1`, identifier)
}

// UpdateProfile applies the set fields of upd.
func (p *Postgres) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE profiles SET
			name = COALESCE($2, name),
			mobile_number = COALESCE($3, mobile_number),
			otp_enabled = COALESCE($4, otp_enabled),
			avatar_url = COALESCE($5, avatar_url),
			updated_at = NOW()
		WHERE id = $1
	`, id, upd.Name, upd.MobileNumber, upd.OTPEnabled, upd.AvatarURL)
	return affectedOne(res, err, "profile", id)
}

// -------- Payments & feedback --------

// InsertPayment records a payment attempt.
func (p *Postgres) InsertPayment(ctx context.Context, pay model.Payment) (model.Payment, error) {
	if pay.ID == "" {
		pay.ID = uuid.NewString()
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO payments (id, user_id, event_id, amount, currency, payment_method, transaction_id, status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING created_at
	`, pay.ID, pay.UserID, pay.EventID, pay.Amount, pay.Currency, pay.Method, pay.TransactionID, string(pay.Status)).Scan(&pay.CreatedAt)
	if err != nil {
		return model.Payment{}, translate(err, nil)
	}
	return pay, nil
}

// InsertFeedback stores a feedback message.
func (p *Postgres) InsertFeedback(ctx context.Context, f model.Feedback) (model.Feedback, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = "pending"
	}
	var rating any
	if f.Rating > 0 {
		rating = f.Rating
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO feedback (id, user_id, type, subject, message, rating, is_anonymous, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, f.ID, f.UserID, string(f.Type), f.Subject, f.Message, rating, f.IsAnonymous, f.Status).Scan(&f.CreatedAt)
	if err != nil {
		return model.Feedback{}, translate(err, nil)
	}
	return f, nil
}

// ListFeedback returns the most recent feedback first.
func (p *Postgres) ListFeedback(ctx context.Context, limit int) ([]model.Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, COALESCE(user_id, ''), type, subject, message, COALESCE(rating, 0), is_anonymous, status, created_at
		FROM feedback ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, translate(err, nil)
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.UserID, &f.Type, &f.Subject, &f.Message, &f.Rating, &f.IsAnonymous, &f.Status, &f.CreatedAt); err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, f)
	}
	return out, errors.Trace(rows.Err())
}

func affectedOne(res sql.Result, err error, kind, id string) error {
	if err != nil {
		return translate(err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Trace(err)
	}
	if n == 0 {
		return errors.NotFoundf("%s %q", kind, id)
	}
	return nil
}

func itoa(i int) string { return strconv.Itoa(i) }
