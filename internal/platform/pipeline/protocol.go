package pipeline

// Messages exchanged with the pipeline process, one JSON object per line.
// Commands go to the process on stdin; events come back on stdout.

const (
	cmdInit     = "init"
	cmdGenerate = "generate"

	eventReady    = "ready"
	eventProgress = "progress"
	eventDone     = "done"
	eventError    = "error"
)

// initCommand asks the process to load the model. It is sent once.
type initCommand struct {
	Type            string   `json:"type"`
	ModelPath       string   `json:"model_path,omitempty"`
	VAEFile         string   `json:"vae_file,omitempty"`
	ApplyLoRA       []string `json:"apply_lora,omitempty"`
	ApplyEmbeddings []string `json:"apply_embeddings,omitempty"`
	OutputDir       string   `json:"output_dir"`
}

// generateCommand describes one fully resolved job.
type generateCommand struct {
	Type           string  `json:"type"`
	ID             string  `json:"id"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	GuidanceScale  float64 `json:"guidance_scale"`
	EmbeddingModel string  `json:"embedding_model,omitempty"`
}

// event is anything the process writes on stdout.
type event struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Step     int    `json:"step,omitempty"`
	Total    int    `json:"total,omitempty"`
	Filename string `json:"filename,omitempty"`
	Message  string `json:"message,omitempty"`
}
