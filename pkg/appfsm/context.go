// Package appfsm implements the concrete Application FSM: the
// Draft→Handlers→Index→Frontend stage graph from spec.md §4.F, wired onto
// pkg/hsm with pkg/beam actors invoked at each generative stage.
package appfsm

// ApplicationContext is the Application FSM's mutable context. Files grow
// monotonically across successful stages; on failure Error is set and no
// files are rolled back, per spec.md §3's invariant.
type ApplicationContext struct {
	UserPrompt        string            `json:"user_prompt"`
	FeedbackData      string            `json:"feedback_data,omitempty"`
	FeedbackComponent string            `json:"feedback_component,omitempty"`
	ServerFiles       map[string]string `json:"server_files"`
	FrontendFiles     map[string]string `json:"frontend_files"`
	Draft             string            `json:"draft,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// NewApplicationContext seeds a fresh context for a new application build.
func NewApplicationContext(userPrompt string) *ApplicationContext {
	return &ApplicationContext{
		UserPrompt:  userPrompt,
		ServerFiles: map[string]string{},
		FrontendFiles: map[string]string{},
	}
}

// draftInput implements spec.md §4.F: "feedback_data or user_prompt".
func (c *ApplicationContext) draftInput() string {
	if c.FeedbackData != "" {
		return c.FeedbackData
	}
	return c.UserPrompt
}

// mergeServerFiles merges solved files into ServerFiles, the monotonic
// growth invariant for server-side stages (Draft, Handlers, Index).
func (c *ApplicationContext) mergeServerFiles(files map[string]string) {
	if c.ServerFiles == nil {
		c.ServerFiles = map[string]string{}
	}
	for path, content := range files {
		c.ServerFiles[path] = content
	}
}

// mergeFrontendFiles merges solved files into FrontendFiles, the monotonic
// growth invariant for the Frontend stage.
func (c *ApplicationContext) mergeFrontendFiles(files map[string]string) {
	if c.FrontendFiles == nil {
		c.FrontendFiles = map[string]string{}
	}
	for path, content := range files {
		c.FrontendFiles[path] = content
	}
}

// AllFiles returns the union of server and frontend files, the view the
// tool processor diffs against a client snapshot.
func (c *ApplicationContext) AllFiles() map[string]string {
	out := make(map[string]string, len(c.ServerFiles)+len(c.FrontendFiles))
	for path, content := range c.ServerFiles {
		out[path] = content
	}
	for path, content := range c.FrontendFiles {
		out[path] = content
	}
	return out
}
