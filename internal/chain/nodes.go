package chain

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// NodePool holds the configured dHealth REST nodes and hands one out
// per announce. Selection is random rather than health-aware; health
// marks only feed metrics and logs.
type NodePool struct {
	mu        sync.Mutex
	nodes     []string
	unhealthy map[string]time.Time
	rng       *rand.Rand
	logger    zerolog.Logger
}

// NewNodePool creates a pool from node base URLs. Trailing slashes are
// stripped so paths can be appended directly.
func NewNodePool(urls []string, logger zerolog.Logger) (*NodePool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("node pool requires at least one URL")
	}

	nodes := make([]string, len(urls))
	for i, u := range urls {
		nodes[i] = strings.TrimRight(strings.TrimSpace(u), "/")
	}

	return &NodePool{
		nodes:     nodes,
		unhealthy: make(map[string]time.Time),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger.With().Str("component", "node_pool").Logger(),
	}, nil
}

// Pick selects the node for the next announce. The draw lands on
// indexes 1..N-1; the first node only serves as the fallback when the
// draw overshoots.
func (p *NodePool) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.rng.Intn(len(p.nodes)) + 1
	if i >= len(p.nodes) {
		i = 0
	}
	return p.nodes[i]
}

// MarkUnhealthy records a failed interaction with the node.
func (p *NodePool) MarkUnhealthy(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.unhealthy[url]; !seen {
		p.logger.Warn().Str("node", url).Msg("Marked node as unhealthy")
	}
	p.unhealthy[url] = time.Now()
}

// MarkHealthy clears an unhealthy mark after a successful interaction.
func (p *NodePool) MarkHealthy(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.unhealthy[url]; seen {
		p.logger.Info().Str("node", url).Msg("Node recovered")
		delete(p.unhealthy, url)
	}
}

// Size returns the number of configured nodes.
func (p *NodePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.nodes)
}

// HealthyCount returns how many nodes carry no unhealthy mark.
func (p *NodePool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.nodes) - len(p.unhealthy)
}
