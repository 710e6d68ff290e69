package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	Store      string        `envconfig:"CONVERSATION_STORE" default:"memory"`
	TTL        time.Duration `envconfig:"CONVERSATION_TTL" default:"24h"`
	MaxThreads int           `envconfig:"CONVERSATION_MAX_THREADS" default:"4096"`
	Classifier struct {
		MaxTurns int `envconfig:"CONVERSATION_CLASSIFIER_MAX_TURNS" default:"5"`
	}
	SmallTalk struct {
		MaxTurns int `envconfig:"CONVERSATION_SMALLTALK_MAX_TURNS" default:"3"`
	}
	FollowUp struct {
		MaxTokens   int `envconfig:"CONVERSATION_FOLLOWUP_MAX_TOKENS" default:"4"`
		MinMessages int `envconfig:"CONVERSATION_FOLLOWUP_MIN_MESSAGES" default:"2"`
	}
}

type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"256"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0"`
}

type GraderModelConfig struct {
	Model       string  `envconfig:"GRADER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"GRADER_MAX_TOKENS" default:"256"`
	Temperature float32 `envconfig:"GRADER_TEMPERATURE" default:"0"`
}

type ResponseModelConfig struct {
	Model          string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature    float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0"`
	ThinkingBudget int32   `envconfig:"RESPONSE_THINKING_BUDGET" default:"0"`
}

type TranslatorModelConfig struct {
	Model       string  `envconfig:"TRANSLATOR_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"TRANSLATOR_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"TRANSLATOR_TEMPERATURE" default:"0"`
}

type RetrievalConfig struct {
	K              int     `envconfig:"RETRIEVAL_K" default:"5"`
	FetchK         int     `envconfig:"RETRIEVAL_FETCH_K" default:"20"`
	Lambda         float64 `envconfig:"RETRIEVAL_MMR_LAMBDA" default:"0.5"`
	Index          string  `envconfig:"RETRIEVAL_INDEX" default:"handbook_idx"`
	VectorField    string  `envconfig:"RETRIEVAL_VECTOR_FIELD" default:"embedding"`
	ContentField   string  `envconfig:"RETRIEVAL_CONTENT_FIELD" default:"content"`
	EmbeddingModel string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
}

// CapabilityConfig bounds every call into a model or retrieval capability.
type CapabilityConfig struct {
	Timeout time.Duration `envconfig:"CAPABILITY_TIMEOUT" default:"30s"`
	Retries uint64        `envconfig:"CAPABILITY_RETRIES" default:"2"`
	Backoff time.Duration `envconfig:"CAPABILITY_BACKOFF" default:"200ms"`
}

type PromptConfig struct {
	CompanyName string `envconfig:"PROMPT_COMPANY_NAME" default:"Agile Lab"`
}

type JudgeModelConfig struct {
	Model       string  `envconfig:"JUDGE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"JUDGE_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"JUDGE_TEMPERATURE" default:"0"`
}
