package studio

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newID builds a collision-resistant identifier of the form
// {prefix}_{unix-millis}_{random}. Uniqueness only needs to hold within one
// store lifetime plus imported data, so no counter is persisted across
// restarts; ids are never recycled.
func newID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}
