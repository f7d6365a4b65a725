// Package all links every storage backend into the binary.
package all

import (
	_ "github.com/pancaim/cdm/pkg/storage/mysql"     // mysql
	_ "github.com/pancaim/cdm/pkg/storage/postgres"  // postgres, postgresql
	_ "github.com/pancaim/cdm/pkg/storage/sqlite"    // sqlite
	_ "github.com/pancaim/cdm/pkg/storage/sqlserver" // sqlserver, mssql
)
