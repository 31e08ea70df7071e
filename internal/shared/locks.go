package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// ConsolidationLockKey builds the redis key serializing consolidation runs
// for one organization + fiscal period.
func ConsolidationLockKey(orgID uuid.UUID, fiscalYear, fiscalPeriod int) string {
	return fmt.Sprintf("consol:run:%s:%s:lock", orgID, PeriodLabel(fiscalYear, fiscalPeriod))
}
