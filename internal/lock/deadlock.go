package lock

import "sort"

// Waiter describes one process participating in a potential deadlock check:
// the locks it already holds and, optionally, the single lock it is
// currently requesting.
type Waiter struct {
	ProcessID      string
	HeldLocks      []string
	RequestedLock  string // empty if not currently waiting on anything
}

// DeadlockType classifies a detected deadlock.
type DeadlockType string

const (
	DeadlockCycle = DeadlockType("cycle")
	DeadlockSelf  = DeadlockType("self-deadlock")
)

// DeadlockGroup is one independent cycle in the wait-for graph.
type DeadlockGroup struct {
	ProcessIDs []string     `json:"process_ids"`
	Type       DeadlockType `json:"type"`
}

// DeadlockResult is the outcome of DetectDeadlock.
type DeadlockResult struct {
	HasDeadlock       bool            `json:"has_deadlock"`
	DeadlockChain     []string        `json:"deadlock_chain,omitempty"`
	CycleLength       int             `json:"cycle_length,omitempty"`
	DeadlockType      DeadlockType    `json:"deadlock_type,omitempty"`
	SuggestedVictim   string          `json:"suggested_victim,omitempty"`
	MultipleDeadlocks bool            `json:"multiple_deadlocks"`
	DeadlockGroups    []DeadlockGroup `json:"deadlock_groups,omitempty"`
}

// DetectDeadlock builds the wait-for graph for a set of waiters — an edge
// from the holder of a requested lock to the requester — and reports any
// cycle of strongly-connected components of size >= 2, plus any self-loop
// (a process requesting a lock it already holds).
func DetectDeadlock(waiters []Waiter) DeadlockResult {
	heldBy := make(map[string]string) // lockName -> holder processID
	for _, w := range waiters {
		for _, l := range w.HeldLocks {
			heldBy[l] = w.ProcessID
		}
	}

	index := make(map[string]int, len(waiters))
	for i, w := range waiters {
		index[w.ProcessID] = i
	}

	// edges[i] = set of j such that i -> j (holder i blocks requester j)
	edges := make([][]int, len(waiters))
	for j, w := range waiters {
		if w.RequestedLock == "" {
			continue
		}
		holder, ok := heldBy[w.RequestedLock]
		if !ok {
			continue
		}
		if holder == w.ProcessID {
			// self-loop: requesting a lock already held by self
			edges[j] = append(edges[j], j)
			continue
		}
		i, ok := index[holder]
		if !ok {
			continue
		}
		edges[i] = append(edges[i], j)
	}

	sccs := tarjanSCC(edges)

	var groups []DeadlockGroup
	for _, scc := range sccs {
		if len(scc) >= 2 {
			groups = append(groups, DeadlockGroup{
				ProcessIDs: idsOf(waiters, scc),
				Type:       DeadlockCycle,
			})
			continue
		}
		// size-1 component: check self-loop
		i := scc[0]
		for _, j := range edges[i] {
			if j == i {
				groups = append(groups, DeadlockGroup{
					ProcessIDs: idsOf(waiters, scc),
					Type:       DeadlockSelf,
				})
				break
			}
		}
	}

	if len(groups) == 0 {
		return DeadlockResult{HasDeadlock: false}
	}

	sort.Slice(groups, func(a, b int) bool {
		return groups[a].ProcessIDs[0] < groups[b].ProcessIDs[0]
	})

	primary := groups[0]
	result := DeadlockResult{
		HasDeadlock:       true,
		DeadlockChain:     primary.ProcessIDs,
		CycleLength:       len(primary.ProcessIDs),
		DeadlockType:      primary.Type,
		SuggestedVictim:   selectVictim(waiters, index, primary.ProcessIDs),
		MultipleDeadlocks: len(groups) > 1,
		DeadlockGroups:    groups,
	}
	return result
}

func idsOf(waiters []Waiter, scc []int) []string {
	ids := make([]string, len(scc))
	for k, i := range scc {
		ids[k] = waiters[i].ProcessID
	}
	sort.Strings(ids)
	return ids
}

// selectVictim picks the waiter with the fewest held locks in the group,
// tie-broken by lexicographically smallest processId.
func selectVictim(waiters []Waiter, index map[string]int, group []string) string {
	best := ""
	bestHeld := -1
	for _, id := range group {
		i, ok := index[id]
		if !ok {
			continue
		}
		held := len(waiters[i].HeldLocks)
		if bestHeld == -1 || held < bestHeld || (held == bestHeld && id < best) {
			best = id
			bestHeld = held
		}
	}
	return best
}

// WouldDeadlock reports whether granting requestedLock to processID — given
// the already-held locks of that lock's current holder — would close a
// cycle. Used by an optional prevention mode that rejects an acquisition
// before it happens.
func WouldDeadlock(waiters []Waiter, processID, requestedLock string) bool {
	augmented := make([]Waiter, len(waiters))
	copy(augmented, waiters)
	found := false
	for i, w := range augmented {
		if w.ProcessID == processID {
			augmented[i].RequestedLock = requestedLock
			found = true
		}
	}
	if !found {
		augmented = append(augmented, Waiter{ProcessID: processID, RequestedLock: requestedLock})
	}
	return DetectDeadlock(augmented).HasDeadlock
}

// tarjanSCC computes strongly connected components of a directed graph
// given as an adjacency list indexed 0..n-1, returning each component as a
// list of node indices.
func tarjanSCC(edges [][]int) [][]int {
	n := len(edges)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var stack []int
	var result [][]int
	counter := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if index[w] == -1 {
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] {
				if index[w] < low[v] {
					low[v] = index[w]
				}
			}
		}

		if low[v] == index[v] {
			var component []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			result = append(result, component)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			strongconnect(v)
		}
	}
	return result
}
