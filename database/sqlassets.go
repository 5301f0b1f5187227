package sqlassets

import _ "embed"

//go:embed schema/shared/tenants.sql
var TenantsSQL string

//go:embed schema/shared/users.sql
var UsersSQL string

//go:embed schema/shared/reports.sql
var ReportsSQL string

//go:embed schema/tenant_space/base_tables.sql
var TenantBaseTablesSQL string
