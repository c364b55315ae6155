package peft

import "strings"

// Role is the architectural role a weight key is classified into.
type Role int

// Roles recognized by the default classification table.
const (
	RoleUnclassified Role = iota
	RoleEmbedding
	RoleAttention
	RoleFeedForward
)

func (r Role) String() string {
	switch r {
	case RoleEmbedding:
		return "embedding"
	case RoleAttention:
		return "attention"
	case RoleFeedForward:
		return "feed-forward"
	default:
		return "unclassified"
	}
}

// Prefix returns the output key prefix for the role under a model tag,
// e.g. tag "llama" yields "lora_llama", "lora_llama_csa" and
// "lora_llama_block". Unclassified paths share the generic block prefix.
func (r Role) Prefix(tag string) string {
	switch r {
	case RoleEmbedding:
		return "lora_" + tag
	case RoleAttention:
		return "lora_" + tag + "_csa"
	default:
		return "lora_" + tag + "_block"
	}
}

// Rule matches a base module path against substring markers. A path matches
// when it contains every string in All and, if Any is non-empty, at least
// one string in Any.
type Rule struct {
	Role Role
	All  []string
	Any  []string
}

func (r Rule) matches(path string) bool {
	for _, s := range r.All {
		if !strings.Contains(path, s) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return true
	}
	for _, s := range r.Any {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// Table is an ordered list of classification rules; the first matching rule
// wins and an exhausted table yields RoleUnclassified.
type Table []Rule

// Classify resolves the role of a base module path.
func (t Table) Classify(path string) Role {
	for _, rule := range t {
		if rule.matches(path) {
			return rule.Role
		}
	}
	return RoleUnclassified
}

// DefaultTable returns the classification rules for LLaMA-family naming:
// token embedding and output head, causal self-attention projections, and
// feed-forward projections.
func DefaultTable() Table {
	return Table{
		{Role: RoleEmbedding, Any: []string{"embed_tokens", "lm_head"}},
		{Role: RoleAttention, All: []string{"self_attn"}, Any: []string{"q_proj", "k_proj", "v_proj", "o_proj"}},
		{Role: RoleFeedForward, Any: []string{"mlp", "gate_proj", "up_proj", "down_proj", "fc1", "fc2", "feed_forward"}},
	}
}
