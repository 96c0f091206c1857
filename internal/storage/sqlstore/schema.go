package sqlstore

// tables is applied statement by statement. The DDL sticks to the subset
// both SQLite and MySQL accept: VARCHAR keys, TEXT bodies, timestamps as
// fixed-width VARCHAR, booleans as INTEGER.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS plans (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		code VARCHAR(32) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		status VARCHAR(32) NOT NULL,
		planned_start VARCHAR(40),
		planned_end VARCHAR(40),
		actual_start VARCHAR(40),
		actual_end VARCHAR(40),
		rollback_deadline VARCHAR(40),
		hypercare_weeks INTEGER NOT NULL,
		hypercare_start VARCHAR(40),
		hypercare_end VARCHAR(40),
		created_by VARCHAR(255),
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		UNIQUE (tenant_id, program_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS scope_items (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		owner VARCHAR(255),
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		scope_item_id VARCHAR(64) NOT NULL,
		task_key VARCHAR(128),
		title VARCHAR(500) NOT NULL,
		description TEXT,
		owner VARCHAR(255),
		status VARCHAR(32) NOT NULL,
		sequence INTEGER NOT NULL,
		planned_duration_min INTEGER NOT NULL,
		actual_start VARCHAR(40),
		actual_end VARCHAR(40),
		delay_minutes INTEGER,
		is_critical_path INTEGER NOT NULL,
		issue_note TEXT,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		UNIQUE (plan_id, task_key),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE,
		FOREIGN KEY (scope_item_id) REFERENCES scope_items(id)
	)`,
	`CREATE TABLE IF NOT EXISTS task_dependencies (
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		predecessor_id VARCHAR(64) NOT NULL,
		successor_id VARCHAR(64) NOT NULL,
		lag_minutes INTEGER NOT NULL,
		created_at VARCHAR(40) NOT NULL,
		created_by VARCHAR(255),
		PRIMARY KEY (predecessor_id, successor_id),
		FOREIGN KEY (predecessor_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (successor_id) REFERENCES tasks(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS rehearsals (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		rehearsal_number INTEGER NOT NULL,
		status VARCHAR(32) NOT NULL,
		notes TEXT,
		started_at VARCHAR(40),
		completed_at VARCHAR(40),
		metrics TEXT,
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		UNIQUE (plan_id, rehearsal_number),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS go_no_go_items (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		criterion VARCHAR(500) NOT NULL,
		source_domain VARCHAR(128),
		owner VARCHAR(255),
		verdict VARCHAR(16) NOT NULL,
		evidence TEXT,
		evaluated_at VARCHAR(40),
		evaluated_by VARCHAR(255),
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		title VARCHAR(500) NOT NULL,
		description TEXT,
		severity VARCHAR(4) NOT NULL,
		status VARCHAR(32) NOT NULL,
		reporter VARCHAR(255),
		assignee VARCHAR(255),
		reported_at VARCHAR(40) NOT NULL,
		sla_response_deadline VARCHAR(40) NOT NULL,
		sla_resolution_deadline VARCHAR(40) NOT NULL,
		first_response_at VARCHAR(40),
		resolved_at VARCHAR(40),
		closed_at VARCHAR(40),
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS incident_comments (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		incident_id VARCHAR(64) NOT NULL,
		author VARCHAR(255) NOT NULL,
		body TEXT NOT NULL,
		created_at VARCHAR(40) NOT NULL,
		FOREIGN KEY (incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS hypercare_slas (
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		severity VARCHAR(4) NOT NULL,
		response_min INTEGER NOT NULL,
		resolution_min INTEGER NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		PRIMARY KEY (plan_id, severity),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS escalation_rules (
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		severity VARCHAR(4) NOT NULL,
		level_order INTEGER NOT NULL,
		trigger_after_min INTEGER NOT NULL,
		target_role VARCHAR(128) NOT NULL,
		basis VARCHAR(32) NOT NULL,
		is_active INTEGER NOT NULL,
		PRIMARY KEY (plan_id, severity, level_order),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS escalation_events (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		incident_id VARCHAR(64) NOT NULL,
		level INTEGER NOT NULL,
		target_role VARCHAR(128),
		is_auto INTEGER NOT NULL,
		reason TEXT,
		triggered_at VARCHAR(40) NOT NULL,
		triggered_by VARCHAR(255),
		acknowledged_at VARCHAR(40),
		acknowledged_by VARCHAR(255),
		UNIQUE (incident_id, level),
		FOREIGN KEY (incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS exit_criteria (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		criterion_type VARCHAR(16) NOT NULL,
		metric VARCHAR(32),
		threshold DOUBLE,
		mandatory INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL,
		evidence TEXT,
		evaluated_at VARCHAR(40),
		evaluated_by VARCHAR(255),
		created_at VARCHAR(40) NOT NULL,
		updated_at VARCHAR(40) NOT NULL,
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS exit_signoffs (
		id VARCHAR(64) PRIMARY KEY,
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		plan_id VARCHAR(64) NOT NULL,
		approver VARCHAR(255) NOT NULL,
		decision VARCHAR(32) NOT NULL,
		comment TEXT,
		signed_at VARCHAR(40) NOT NULL,
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS scope_locks (
		tenant_id VARCHAR(64) NOT NULL,
		program_id VARCHAR(64) NOT NULL,
		PRIMARY KEY (tenant_id, program_id)
	)`,
}

// indexes are created after tables. SQLite takes IF NOT EXISTS; on MySQL a
// duplicate key name error on re-open is ignored.
var indexes = []struct{ name, table, cols string }{
	{"idx_plans_scope", "plans", "tenant_id, program_id, status"},
	{"idx_scope_items_scope", "scope_items", "tenant_id, program_id"},
	{"idx_tasks_plan", "tasks", "plan_id, sequence"},
	{"idx_tasks_scope_item", "tasks", "scope_item_id"},
	{"idx_deps_plan", "task_dependencies", "plan_id"},
	{"idx_deps_successor", "task_dependencies", "successor_id"},
	{"idx_rehearsals_plan", "rehearsals", "plan_id, status"},
	{"idx_gonogo_plan", "go_no_go_items", "plan_id, verdict"},
	{"idx_incidents_plan", "incidents", "plan_id, status"},
	{"idx_comments_incident", "incident_comments", "incident_id"},
	{"idx_events_plan", "escalation_events", "plan_id"},
	{"idx_exit_criteria_plan", "exit_criteria", "plan_id"},
	{"idx_signoffs_plan", "exit_signoffs", "plan_id"},
}
