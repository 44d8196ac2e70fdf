package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukex/devsim/pkg/models"
)

// AppendTransmission inserts a transmission log entry.
func (p *Persistence) AppendTransmission(ctx context.Context, entry *models.TransmissionLogEntry) error {
	query := `
		INSERT INTO transmission_logs (
			id, device_id, connection_id, kind, status, payload_snapshot, response_detail, error_detail, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var payload any
	if len(entry.PayloadSnapshot) > 0 {
		payload = []byte(entry.PayloadSnapshot)
	}

	_, err := p.db.ExecContext(ctx, query,
		entry.ID,
		entry.DeviceID,
		entry.ConnectionID,
		string(entry.Kind),
		string(entry.Status),
		payload,
		entry.ResponseDetail,
		entry.ErrorDetail,
		entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transmission entry: %w", err)
	}

	return nil
}

// TransmissionHistory returns up to limit entries, newest first.
func (p *Persistence) TransmissionHistory(ctx context.Context, deviceID string, limit int) ([]*models.TransmissionLogEntry, error) {
	query := `
		SELECT id, device_id, connection_id, kind, status, payload_snapshot, response_detail, error_detail, sent_at
		FROM transmission_logs
		WHERE device_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`

	rows, err := p.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transmission history: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			p.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	entries := make([]*models.TransmissionLogEntry, 0, limit)

	for rows.Next() {
		var (
			entry       models.TransmissionLogEntry
			kind        string
			status      string
			payload     []byte
			errorDetail sql.NullString
		)

		err := rows.Scan(
			&entry.ID,
			&entry.DeviceID,
			&entry.ConnectionID,
			&kind,
			&status,
			&payload,
			&entry.ResponseDetail,
			&errorDetail,
			&entry.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transmission entry: %w", err)
		}

		entry.Kind = models.TransmissionKind(kind)
		entry.Status = models.TransmissionStatus(status)
		entry.PayloadSnapshot = payload

		if errorDetail.Valid {
			entry.ErrorDetail = &errorDetail.String
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transmission history: %w", err)
	}

	return entries, nil
}
