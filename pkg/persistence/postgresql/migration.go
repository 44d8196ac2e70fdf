package postgresql

const migrationsTable = "schema_migrations"

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE devices (
				id VARCHAR(255) PRIMARY KEY,
				reference VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL DEFAULT '',
				category VARCHAR(50) NOT NULL CHECK (category IN ('CONTINUOUS', 'SEQUENTIAL')),
				frequency_seconds INTEGER NOT NULL CHECK (frequency_seconds >= 0),
				enabled BOOLEAN NOT NULL DEFAULT false,
				cursor_position INTEGER NOT NULL DEFAULT 0 CHECK (cursor_position >= 0),
				last_sent_at TIMESTAMP WITH TIME ZONE,
				selected_connection_id VARCHAR(255),
				dataset JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_devices_enabled ON devices(enabled);

			CREATE TABLE connections (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				protocol VARCHAR(20) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT false,
				host VARCHAR(255) NOT NULL,
				port INTEGER NOT NULL DEFAULT 0,
				endpoint VARCHAR(1024) NOT NULL DEFAULT '',
				config JSONB NOT NULL DEFAULT '{}',
				auth JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_connections_active ON connections(active);

			CREATE TABLE transmission_logs (
				id UUID PRIMARY KEY,
				device_id VARCHAR(255) NOT NULL,
				connection_id VARCHAR(255) NOT NULL,
				kind VARCHAR(20) NOT NULL,
				status VARCHAR(20) NOT NULL,
				payload_snapshot JSONB,
				response_detail TEXT NOT NULL DEFAULT '',
				error_detail TEXT,
				sent_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_transmission_logs_device_sent ON transmission_logs(device_id, sent_at DESC);
		`,
		2: `
			ALTER TABLE devices
				ADD COLUMN include_reference BOOLEAN NOT NULL DEFAULT false,
				ADD COLUMN auto_reset BOOLEAN NOT NULL DEFAULT false;
		`,
	}
}
