package migrations

import "embed"

// FS 内嵌的迁移脚本，文件名格式为 NNN_name.sql
//
//go:embed scripts/*.sql
var FS embed.FS
