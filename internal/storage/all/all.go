// Package all registers every source backend with the storage factory.
// Binaries blank-import it; the job file picks the kind.
package all

import (
	_ "caseexport/internal/storage/memory"
	_ "caseexport/internal/storage/mssql"
	_ "caseexport/internal/storage/postgres"
	_ "caseexport/internal/storage/sqlite"
)
