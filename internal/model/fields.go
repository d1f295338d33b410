package model

// LexicalFields names the ContentFields keys that feed the lexical index for
// a given kind, concatenated in order to build the searchable text.
func LexicalFields(k Kind) []string {
	switch k {
	case KindChatMessage:
		return []string{"content"}
	case KindEpisodicEvent:
		return []string{"summary", "details"}
	case KindSemanticItem:
		return []string{"name", "summary", "details"}
	case KindProceduralItem:
		return []string{"skill_name", "description"}
	case KindResourceItem:
		return []string{"resource_name", "description"}
	case KindKnowledgeVaultItem:
		return []string{"title", "content"}
	default:
		return nil
	}
}

// EmbeddingSourceField names the ContentFields key whose text is sent to the
// embedding provider for a given kind, and the key the resulting vector is
// stored back under.
func EmbeddingSourceField(k Kind) (textField, vectorField string) {
	switch k {
	case KindChatMessage:
		return "content", "content_embedding"
	case KindEpisodicEvent:
		return "summary", "summary_embedding"
	case KindSemanticItem:
		return "summary", "summary_embedding"
	case KindProceduralItem:
		return "description", "description_embedding"
	case KindResourceItem:
		return "description", "description_embedding"
	case KindKnowledgeVaultItem:
		return "content", "content_embedding"
	default:
		return "", ""
	}
}

// RequiredFields names the ContentFields keys that must be present (and
// non-empty strings) for a CreateInput of the given kind.
func RequiredFields(k Kind) []string {
	switch k {
	case KindChatMessage:
		return []string{"session_id", "role", "content"}
	case KindEpisodicEvent:
		return []string{"actor", "event_type", "summary"}
	case KindSemanticItem:
		return []string{"name", "summary"}
	case KindProceduralItem:
		return []string{"skill_name", "description"}
	case KindResourceItem:
		return []string{"resource_name", "resource_type", "location"}
	case KindKnowledgeVaultItem:
		return []string{"title", "content"}
	default:
		return nil
	}
}
