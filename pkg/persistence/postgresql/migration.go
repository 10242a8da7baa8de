package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflow_instances table
			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				content_id VARCHAR(255) NOT NULL,
				content_type VARCHAR(50) NOT NULL,
				current_state VARCHAR(50) NOT NULL,
				previous_state VARCHAR(50),
				version BIGINT NOT NULL DEFAULT 0,
				locked BOOLEAN NOT NULL DEFAULT FALSE,
				lock_reason TEXT,
				owner VARCHAR(255),
				metadata JSONB,
				history JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_instances_content_id ON workflow_instances(content_id);
			CREATE INDEX idx_workflow_instances_current_state ON workflow_instances(current_state);
			CREATE INDEX idx_workflow_instances_locked ON workflow_instances(locked);
			CREATE INDEX idx_workflow_instances_updated_at ON workflow_instances(updated_at);

			-- Create state_snapshots table
			-- The snapshot is stored as the serialized payload so the checksum
			-- verifies against exactly what was captured.
			CREATE TABLE state_snapshots (
				instance_id VARCHAR(255) PRIMARY KEY,
				payload JSONB NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_state_snapshots_created_at ON state_snapshots(created_at);

			-- Create audit_entries table
			CREATE TABLE audit_entries (
				id VARCHAR(255) PRIMARY KEY,
				correlation_id VARCHAR(255) NOT NULL,
				sequence BIGINT NOT NULL,
				instance_id VARCHAR(255),
				kind VARCHAR(50) NOT NULL,
				severity VARCHAR(20) NOT NULL,
				code VARCHAR(100),
				message TEXT NOT NULL,
				actor VARCHAR(255),
				details JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (correlation_id, sequence)
			);

			CREATE INDEX idx_audit_entries_correlation ON audit_entries(correlation_id, sequence);
			CREATE INDEX idx_audit_entries_instance ON audit_entries(instance_id, created_at);
			CREATE INDEX idx_audit_entries_kind ON audit_entries(kind);
		`,
	}
}
