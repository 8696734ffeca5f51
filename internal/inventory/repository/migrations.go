package repository

// Migrations creates the inventory schema. Statements are idempotent and
// run in order by database.DB.Migrate.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS warehouses (
		id UUID PRIMARY KEY,
		code VARCHAR(50) NOT NULL,
		name VARCHAR(255) NOT NULL,
		address TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS warehouses_code_key ON warehouses (LOWER(code))`,

	`CREATE TABLE IF NOT EXISTS skus (
		id UUID PRIMARY KEY,
		code VARCHAR(100) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		units_per_carton BIGINT NOT NULL CHECK (units_per_carton > 0),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS skus_code_key ON skus (LOWER(code))`,

	`CREATE TABLE IF NOT EXISTS packaging_configs (
		id UUID PRIMARY KEY,
		warehouse_id UUID NOT NULL REFERENCES warehouses(id),
		sku_id UUID NOT NULL REFERENCES skus(id),
		effective_from DATE NOT NULL,
		effective_to DATE,
		storage_cartons_per_pallet BIGINT NOT NULL CHECK (storage_cartons_per_pallet > 0),
		shipping_cartons_per_pallet BIGINT NOT NULL CHECK (shipping_cartons_per_pallet > 0),
		max_stack_height BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT packaging_effective_range CHECK (effective_to IS NULL OR effective_to >= effective_from)
	)`,
	`CREATE INDEX IF NOT EXISTS packaging_configs_lookup ON packaging_configs (warehouse_id, sku_id, effective_from)`,

	`CREATE TABLE IF NOT EXISTS cost_rates (
		id UUID PRIMARY KEY,
		warehouse_id UUID NOT NULL REFERENCES warehouses(id),
		cost_category VARCHAR(50) NOT NULL,
		cost_name VARCHAR(255) NOT NULL,
		cost_value NUMERIC(14, 4) NOT NULL CHECK (cost_value >= 0),
		unit_of_measure VARCHAR(50) NOT NULL,
		effective_from DATE NOT NULL,
		effective_to DATE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT rates_effective_range CHECK (effective_to IS NULL OR effective_to >= effective_from)
	)`,
	`CREATE INDEX IF NOT EXISTS cost_rates_lookup ON cost_rates (warehouse_id, cost_category, effective_from)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		warehouse_id UUID NOT NULL REFERENCES warehouses(id),
		sku_id UUID NOT NULL REFERENCES skus(id),
		batch_lot VARCHAR(100) NOT NULL,
		transaction_type VARCHAR(20) NOT NULL,
		cartons_in BIGINT NOT NULL DEFAULT 0,
		cartons_out BIGINT NOT NULL DEFAULT 0,
		storage_pallets_in BIGINT NOT NULL DEFAULT 0,
		shipping_pallets_out BIGINT NOT NULL DEFAULT 0,
		units_per_carton BIGINT NOT NULL,
		storage_cartons_per_pallet BIGINT,
		shipping_cartons_per_pallet BIGINT,
		transaction_date TIMESTAMPTZ NOT NULL,
		reference_id VARCHAR(255),
		tracking_number VARCHAR(255),
		attachments JSONB NOT NULL DEFAULT '[]',
		notes TEXT,
		created_by_id VARCHAR(255) NOT NULL,
		created_by_name VARCHAR(255) NOT NULL DEFAULT '',
		is_reconciled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT transactions_quantities_non_negative CHECK (
			cartons_in >= 0 AND cartons_out >= 0 AND storage_pallets_in >= 0 AND shipping_pallets_out >= 0
		)
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_key_date ON transactions (warehouse_id, sku_id, batch_lot, transaction_date)`,
	`CREATE INDEX IF NOT EXISTS transactions_date ON transactions (transaction_date)`,

	`CREATE TABLE IF NOT EXISTS balances (
		id UUID PRIMARY KEY,
		warehouse_id UUID NOT NULL REFERENCES warehouses(id),
		sku_id UUID NOT NULL REFERENCES skus(id),
		batch_lot VARCHAR(100) NOT NULL,
		current_cartons BIGINT NOT NULL DEFAULT 0,
		current_pallets BIGINT NOT NULL DEFAULT 0,
		current_units BIGINT NOT NULL DEFAULT 0,
		storage_cartons_per_pallet BIGINT,
		shipping_cartons_per_pallet BIGINT,
		first_received_at TIMESTAMPTZ,
		last_transaction_date TIMESTAMPTZ,
		version BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT balances_key UNIQUE (warehouse_id, sku_id, batch_lot),
		CONSTRAINT balances_cartons_non_negative CHECK (current_cartons >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS calculated_costs (
		id UUID PRIMARY KEY,
		warehouse_id UUID NOT NULL REFERENCES warehouses(id),
		sku_id UUID NOT NULL REFERENCES skus(id),
		batch_lot VARCHAR(100) NOT NULL,
		billing_week DATE NOT NULL,
		cost_category VARCHAR(50) NOT NULL,
		cost_name VARCHAR(255) NOT NULL,
		rate_id UUID REFERENCES cost_rates(id),
		quantity_charged NUMERIC(14, 4) NOT NULL,
		applicable_rate NUMERIC(14, 4) NOT NULL,
		computed_cost NUMERIC(14, 2) NOT NULL,
		manual_adjustment NUMERIC(14, 2) NOT NULL DEFAULT 0,
		adjustment_reason TEXT,
		final_cost NUMERIC(14, 2) NOT NULL,
		calculated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT calculated_costs_key UNIQUE (warehouse_id, sku_id, batch_lot, billing_week, cost_category)
	)`,
	`CREATE INDEX IF NOT EXISTS calculated_costs_week ON calculated_costs (warehouse_id, billing_week, cost_category)`,

	`CREATE TABLE IF NOT EXISTS invoices (
		id UUID PRIMARY KEY,
		invoice_number VARCHAR(100) NOT NULL,
		warehouse_id UUID NOT NULL REFERENCES warehouses(id),
		billing_period_start DATE NOT NULL,
		billing_period_end DATE NOT NULL,
		invoice_date DATE NOT NULL,
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		total_amount NUMERIC(14, 2) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_by_id VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT invoices_invoice_number_key UNIQUE (warehouse_id, invoice_number)
	)`,

	`CREATE TABLE IF NOT EXISTS invoice_lines (
		id UUID PRIMARY KEY,
		invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		line_no INT NOT NULL,
		cost_category VARCHAR(50) NOT NULL,
		cost_name VARCHAR(255) NOT NULL,
		quantity NUMERIC(14, 4),
		unit_rate NUMERIC(14, 4),
		amount NUMERIC(14, 2) NOT NULL,
		CONSTRAINT invoice_lines_quantities_non_negative CHECK (amount >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS invoice_reconciliations (
		id UUID PRIMARY KEY,
		invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		line_id UUID NOT NULL REFERENCES invoice_lines(id) ON DELETE CASCADE,
		cost_category VARCHAR(50) NOT NULL,
		cost_name VARCHAR(255) NOT NULL,
		expected_amount NUMERIC(14, 2) NOT NULL,
		invoiced_amount NUMERIC(14, 2) NOT NULL,
		difference NUMERIC(14, 2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		has_basis BOOLEAN NOT NULL,
		reconciled_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS user_cache (
		user_id VARCHAR(255) PRIMARY KEY,
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255),
		role_name VARCHAR(100),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}
