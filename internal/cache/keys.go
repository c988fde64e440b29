package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// FactorCatalogKey holds the joined factor/category listing. Reference data is global, not per tenant.
const FactorCatalogKey = "catalog:factors:v1"

func RateLimitKey(keyID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:apikey:%s", keyID)
}
