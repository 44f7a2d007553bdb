package core

// ModeKind is the closed set of ingestion modes. Each mode carries only the
// fields it needs, so illegal combinations cannot be expressed by callers.
type ModeKind int

const (
	// ModeNormal is a local creation by the acting user.
	ModeNormal ModeKind = iota
	// ModeImport is a bulk import preserving the origin's entity attribution.
	ModeImport
	// ModeEntity is a local creation attributed to a caller-supplied entity.
	ModeEntity
	// ModeNotification is a remote party asserting a post or subscription event.
	ModeNotification
)

func (k ModeKind) String() string {
	switch k {
	case ModeImport:
		return "import"
	case ModeEntity:
		return "entity"
	case ModeNotification:
		return "notification"
	default:
		return "normal"
	}
}

// Mode describes how a submission entered the system.
type Mode struct {
	Kind ModeKind

	// Entity is the attribution target. Set for ModeEntity, and for
	// ModeNotification when the remote origin asserts another entity's post.
	Entity string

	// PublicID, when non-empty, forces the created post's public id so
	// notification and import flows preserve the origin's id.
	PublicID string

	// CredentialsID is the opaque auth-resource token handed to subscription
	// creation, ModeNotification only.
	CredentialsID string

	// NewVersion marks the submission as a new version of an existing chain
	// without explicit parents. Only valid in notification mode.
	NewVersion bool
}

func NormalMode() Mode { return Mode{Kind: ModeNormal} }

func ImportMode() Mode { return Mode{Kind: ModeImport} }

func EntityMode(entity string) Mode { return Mode{Kind: ModeEntity, Entity: entity} }

func NotificationMode(entity, credentialsID string) Mode {
	return Mode{Kind: ModeNotification, Entity: entity, CredentialsID: credentialsID}
}

func (m Mode) WithPublicID(id string) Mode {
	m.PublicID = id
	return m
}

func (m Mode) WithNewVersion() Mode {
	m.NewVersion = true
	return m
}

func (m Mode) IsNotification() bool { return m.Kind == ModeNotification }

func (m Mode) IsImport() bool { return m.Kind == ModeImport }
