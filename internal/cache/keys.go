package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func ResultKey(jobID uuid.UUID) string {
	return fmt.Sprintf("result:analysis:%s", jobID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
