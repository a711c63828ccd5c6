package protocol

// Type tags a message on the wire
type Type string

const (
	TypeReady             Type = "headlineTester:ready"
	TypeShow              Type = "headlineTester:show"
	TypeHide              Type = "headlineTester:hide"
	TypeMode              Type = "headlineTester:mode"
	TypeDimensions        Type = "headlineTester:dimensions"
	TypeDomContext        Type = "headlineTester:domContext"
	TypeUpdateHeadline    Type = "headlineTester:updateHeadline"
	TypeHeadlineUpdated   Type = "headlineTester:headlineUpdated"
	TypeRequestDomContext Type = "headlineTester:requestDomContext"
)

// Mode is the widget display mode
type Mode string

const (
	ModeHidden   Mode = "hidden"
	ModeLauncher Mode = "launcher"
	ModeChat     Mode = "chat"
)

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	switch m {
	case ModeHidden, ModeLauncher, ModeChat:
		return true
	}
	return false
}

// UpdateStatus is the outcome of a headline mutation
type UpdateStatus string

const (
	StatusSuccess UpdateStatus = "success"
	StatusError   UpdateStatus = "error"
)

// Action distinguishes a rewrite from a restore of the original copy
type Action string

const (
	ActionUpdate Action = "update"
	ActionReset  Action = "reset"
)

// Failure reasons reported by the loader
const (
	ReasonNotFound       = "not-found"
	ReasonInvalidPayload = "invalid-payload"
)

// Message is implemented by every wire message
type Message interface {
	MessageType() Type
}

// Ready is the widget's handshake
type Ready struct {
	Token           string `json:"token"`
	SiteName        string `json:"siteName"`
	Mode            Mode   `json:"mode"`
	ExperimentReady bool   `json:"experimentReady"`
}

// Show asks the widget to become visible
type Show struct {
	Open bool `json:"open,omitempty"`
}

// Hide asks the widget to hide completely
type Hide struct{}

// ModeChange reports the widget's current mode
type ModeChange struct {
	Mode            Mode `json:"mode"`
	ExperimentReady bool `json:"experimentReady"`
}

// Dimensions reports the measured widget surface. Either side may be absent.
type Dimensions struct {
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// DomContext describes the headline target on the host page
type DomContext struct {
	Selector     *string `json:"selector"`
	Text         *string `json:"text"`
	OriginalText *string `json:"originalText"`
	Found        bool    `json:"found"`
	Path         *string `json:"path,omitempty"`
	URL          *string `json:"url,omitempty"`
}

// RequestDomContext asks the loader for a fresh DomContext
type RequestDomContext struct{}

// UpdateHeadline asks the loader to mutate or restore the headline
type UpdateHeadline struct {
	Text      *string `json:"text,omitempty"`
	Reset     bool    `json:"reset,omitempty"`
	RequestID string  `json:"requestId,omitempty"`
}

// HeadlineUpdated acknowledges an UpdateHeadline
type HeadlineUpdated struct {
	Status    UpdateStatus `json:"status"`
	Selector  *string      `json:"selector,omitempty"`
	Text      *string      `json:"text,omitempty"`
	Reason    *string      `json:"reason,omitempty"`
	Action    Action       `json:"action,omitempty"`
	RequestID *string      `json:"requestId,omitempty"`
	Path      *string      `json:"path,omitempty"`
}

func (Ready) MessageType() Type             { return TypeReady }
func (Show) MessageType() Type              { return TypeShow }
func (Hide) MessageType() Type              { return TypeHide }
func (ModeChange) MessageType() Type        { return TypeMode }
func (Dimensions) MessageType() Type        { return TypeDimensions }
func (DomContext) MessageType() Type        { return TypeDomContext }
func (RequestDomContext) MessageType() Type { return TypeRequestDomContext }
func (UpdateHeadline) MessageType() Type    { return TypeUpdateHeadline }
func (HeadlineUpdated) MessageType() Type   { return TypeHeadlineUpdated }

// String returns a pointer to s
func String(s string) *string {
	return &s
}

// Float returns a pointer to f
func Float(f float64) *float64 {
	return &f
}

// Deref returns the pointed-to string or "" when nil
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
