package catalog

import (
	"fmt"
	"sync"
	"time"
)

// ConditionResolver looks up the currently available value for a
// referenced message's field. The resolver a Catalog uses reads only the
// last observed value: for a message that has never been observed it
// returns an error and does not trigger a bus read.
type ConditionResolver func(circuit, name, field string) (Value, time.Time, error)

// Condition gates a Message's visibility to resolution.
type Condition interface {
	Evaluate(now time.Time, resolve ConditionResolver) bool
	refs() []conditionRef
}

type conditionRef struct {
	circuit, name string
}

// ValueRange is one accepted value or inclusive range in a
// SimpleCondition's value-set.
type ValueRange struct {
	Low, High float64
	Str       string // non-empty for a string-valued match
}

func (r ValueRange) matches(v Value) bool {
	if r.Str != "" {
		return v.IsStr && v.Str == r.Str
	}
	if v.IsStr {
		return false
	}
	return v.Num >= r.Low && v.Num <= r.High
}

// SimpleCondition references another message's field and a set of
// accepted values or ranges, per spec.md §3 "Condition".
type SimpleCondition struct {
	Circuit, Name, Field string
	Ranges               []ValueRange

	mu             sync.Mutex
	lastCheckTime  time.Time
	lastChangeSeen time.Time
	cached         bool
}

func (c *SimpleCondition) refs() []conditionRef {
	return []conditionRef{{c.Circuit, c.Name}}
}

// Evaluate caches its truth value, only re-checking when the referenced
// message's last_change_time has advanced since the last check (spec.md
// §3 "carries a last_check_time and cached truth value, invalidated when
// the referenced message's last_change_time advances").
func (c *SimpleCondition) Evaluate(now time.Time, resolve ConditionResolver) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, changeTime, err := resolve(c.Circuit, c.Name, c.Field)
	if err != nil {
		return false
	}
	if !c.lastCheckTime.IsZero() && !changeTime.After(c.lastChangeSeen) {
		return c.cached
	}
	c.lastCheckTime = now
	c.lastChangeSeen = changeTime

	ok := false
	for _, r := range c.Ranges {
		if r.matches(v) {
			ok = true
			break
		}
	}
	c.cached = ok
	return ok
}

// CombinedCondition is a conjunction of simple conditions: all must be
// true (spec.md §3 "or a conjunction of simple conditions").
type CombinedCondition struct {
	Conditions []*SimpleCondition
}

func (c *CombinedCondition) refs() []conditionRef {
	var out []conditionRef
	for _, sc := range c.Conditions {
		out = append(out, sc.refs()...)
	}
	return out
}

func (c *CombinedCondition) Evaluate(now time.Time, resolve ConditionResolver) bool {
	for _, sc := range c.Conditions {
		if !sc.Evaluate(now, resolve) {
			return false
		}
	}
	return true
}

// CheckAcyclic verifies that the named condition does not, directly or
// transitively through the references it holds against other named
// conditions in byName, participate in a cycle. References form a DAG
// and cycles are refused at load time (spec.md §3 "Conditions never
// recurse infinitely... cycles are refused at load time").
func CheckAcyclic(name string, byName map[string]Condition) error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var walk func(n string) error
	walk = func(n string) error {
		if visited[n] {
			return nil
		}
		if visiting[n] {
			return fmt.Errorf("catalog: condition %q participates in a cycle", n)
		}
		cond, ok := byName[n]
		if !ok {
			return nil
		}
		visiting[n] = true
		for _, ref := range cond.refs() {
			if err := walk(ref.name); err != nil {
				return err
			}
		}
		visiting[n] = false
		visited[n] = true
		return nil
	}
	return walk(name)
}
