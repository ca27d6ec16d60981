package turn

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces turn IDs of the form <session>-turn-<n>-<instance>.
// The counter orders turns within one generator; the random instance token
// keeps IDs distinct when a later process resumes the same session.
type Generator struct {
	counter  uint64
	instance string
}

func NewGenerator() *Generator {
	return &Generator{instance: strings.ReplaceAll(uuid.NewString(), "-", "")[:12]}
}

func (g *Generator) Next(sessionID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-turn-%d-%s", sessionID, n, g.instance)
}
