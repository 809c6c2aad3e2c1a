package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"diploma-rag/internal/core"
)

// extractionPrompt asks the model to return linear, self-contained plain text
// with tables, charts and images rewritten as sentences.
const extractionPrompt = `Role: Expert in document analysis and RAG (retrieval-augmented generation) optimization

Task: A user will upload a document. Your task is to extract, interpret, and return the complete content of the file in plain text, optimized for use in RAG pipelines.

Instructions:
1. Content Extraction
- Accurately extract all the contents from the input.
- Ensure the output is plain text (no markdown, bold, italics, or headings except numbering, should be RAG optimized).
- The output should be directly usable in RAG pipelines.

2. Non-Textual Elements (tables, images, charts, graphs, CSVs, structured data, etc.)
- Do not skip any element; retain full context.
- Provide a clear descriptive title for each element (RAG-optimized, concise, unambiguous).
- Convert structured/visual data into a human-readable text description:
    - Tables/CSVs: convert each row into clear, short, human-readable sentences. Each key detail should form its own sentence.
    - Graphs/Charts: describe the variables, axes, trends, and key values.
    - Images: describe the contents with context and relevance to the document.
- Always present both the raw extracted text/data and the interpreted explanation.

3. Clarity & Consistency
- Output must be linear, contextually complete, and self-contained (no references like "see above").
- Use simple, clear sentences so the text is both machine-processable and human-readable.
- Do not omit or summarize; include everything, even if approximate.`

var extractMIMETypes = map[string]string{
	"pdf": "application/pdf",
	"csv": "text/csv",
}

// GeminiExtractor extracts document text through the Gemini Files API instead
// of a local parser, so tables and figures come back as readable sentences.
type GeminiExtractor struct {
	client    *genai.Client
	modelName string
}

func NewGeminiExtractor(ctx context.Context, apiKey, modelName string) (*GeminiExtractor, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	return &GeminiExtractor{client: cl, modelName: modelName}, nil
}

func (g *GeminiExtractor) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiExtractor) Extract(ctx context.Context, data []byte, ext string) (string, error) {
	mime, ok := extractMIMETypes[strings.ToLower(ext)]
	if !ok {
		return "", fmt.Errorf("llm extraction: unsupported file type %q", ext)
	}

	file, err := g.client.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{MIMEType: mime})
	if err != nil {
		return "", fmt.Errorf("llm extraction: upload file: %w", err)
	}
	defer func() {
		if err := g.client.DeleteFile(ctx, file.Name); err != nil {
			log.Debug().Err(err).Str("file", file.Name).Msg("could not delete uploaded extraction file")
		}
	}()

	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(extractionPrompt)}}

	resp, err := m.GenerateContent(ctx, genai.FileData{MIMEType: file.MIMEType, URI: file.URI})
	if err != nil {
		return "", fmt.Errorf("llm extraction: generate: %w", err)
	}
	if resp.UsageMetadata != nil {
		log.Debug().
			Int32("input_tokens", resp.UsageMetadata.PromptTokenCount).
			Int32("output_tokens", resp.UsageMetadata.CandidatesTokenCount).
			Msg("llm extraction token usage")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("llm extraction: empty response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.Extractor = (*GeminiExtractor)(nil)
