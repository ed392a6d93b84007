package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/config"
	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"

	"github.com/lib/pq"
)

var db *sql.DB

// MustInitDB initializes the global db and panics/logs fatally on error.
func MustInitDB() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s",
		cfg.DB.Username,
		cfg.DB.Password,
		cfg.DB.URL,
		cfg.DB.Port,
	)

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("sql.Open: %v", err)
	}

	if err := d.Ping(); err != nil {
		log.Fatalf("db.Ping: %v", err)
	}

	log.Println("Connected to Postgres")
	db = d
}

func listMedicationsDB(ctx context.Context, userID string) ([]models.Medication, error) {
	if db == nil {
		// Allow test runs without a backing DB.
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, medication_name, dosage, frequency, purpose, notes
		FROM user_medications
		WHERE user_id = $1
		ORDER BY id;
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Medication
	for rows.Next() {
		var m models.Medication
		var dosage, frequency, purpose, notes sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &dosage, &frequency, &purpose, &notes); err != nil {
			return nil, err
		}
		m.Dosage = dosage.String
		m.Frequency = frequency.String
		m.Purpose = purpose.String
		m.Notes = notes.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertMedication(ctx context.Context, userID string, m models.Medication) (int64, error) {
	if db == nil {
		return 0, nil
	}
	const q = `
		INSERT INTO user_medications (user_id, medication_name, dosage, frequency, purpose, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`
	var id int64
	err := db.QueryRowContext(ctx, q,
		userID,
		m.Name,
		nullIfEmpty(m.Dosage),
		nullIfEmpty(m.Frequency),
		nullIfEmpty(m.Purpose),
		nullIfEmpty(m.Notes),
	).Scan(&id)
	return id, err
}

func deleteMedication(ctx context.Context, userID string, medicationID int64) (bool, error) {
	if db == nil {
		return false, nil
	}
	res, err := db.ExecContext(ctx, `
		DELETE FROM user_medications
		WHERE id = $1 AND user_id = $2;
	`, medicationID, userID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func saveAnalysisHistoryDB(ctx context.Context, row models.AnalysisHistory) error {
	if db == nil {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO food_analysis_history (
			user_id, product_name, analysis_type,
			compatibility_score, interaction_level,
			warnings, recommendations
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`,
		row.UserID,
		row.ProductName,
		row.AnalysisType,
		nullableInt(row.CompatibilityScore),
		row.InteractionLevel,
		pq.Array(row.Warnings),
		pq.Array(row.Recommendations),
	)
	return err
}

func listAnalysisHistory(ctx context.Context, userID string, limit int) ([]models.AnalysisHistory, error) {
	if db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, product_name, analysis_type, compatibility_score,
		       interaction_level, warnings, recommendations, created_at
		FROM food_analysis_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnalysisHistory
	for rows.Next() {
		var h models.AnalysisHistory
		var score sql.NullInt64
		var warnings, recommendations pq.StringArray
		if err := rows.Scan(
			&h.ID,
			&h.ProductName,
			&h.AnalysisType,
			&score,
			&h.InteractionLevel,
			&warnings,
			&recommendations,
			&h.CreatedAt,
		); err != nil {
			return nil, err
		}
		if score.Valid {
			n := int(score.Int64)
			h.CompatibilityScore = &n
		}
		h.UserID = userID
		h.Warnings = warnings
		h.Recommendations = recommendations
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func getSubscriberByUserID(ctx context.Context, userID string) (models.Subscriber, error) {
	if db == nil {
		return models.Subscriber{}, sql.ErrNoRows
	}
	var sub models.Subscriber
	var email, customerID, tier sql.NullString
	var end sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT email, stripe_customer_id, subscribed, subscription_tier,
		       subscription_end, scans_used_this_month, usage_period_start
		FROM subscribers
		WHERE user_id = $1;
	`, userID).Scan(&email, &customerID, &sub.Subscribed, &tier, &end, &sub.ScansUsedThisMonth, &sub.UsagePeriodStart)
	if err != nil {
		return models.Subscriber{}, err
	}
	sub.UserID = userID
	sub.Email = email.String
	sub.StripeCustomerID = customerID.String
	sub.SubscriptionTier = models.TierFree
	if tier.Valid {
		sub.SubscriptionTier = models.Tier(tier.String)
	}
	if end.Valid {
		t := end.Time
		sub.SubscriptionEnd = &t
	}
	return sub, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
