package generate

import (
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/appforge/internal/staging"
)

// previewLimit bounds the attachment preview included in a prompt.
const previewLimit = 500

// Input is everything the model sees for one run.
type Input struct {
	Brief       string
	Checks      []string
	Round       int
	Existing    map[string]string // prior repository content on revisions
	Attachments []staging.Staged
}

const systemRules = `You are an expert full-stack web developer. Your task is to generate or modify the complete code for a web app based on a given brief.
You MUST return your response as a single, valid JSON object. The JSON object must have filenames as keys and the file content as string values.
Do not include any explanations or markdown formatting outside of the JSON object itself.

All string values in the JSON MUST be properly escaped according to standard JSON format:
- Newlines must be escaped as \n.
- Double quotes must be escaped as \".
- Backslashes must be escaped as \\.

Your response MUST include index.html and a comprehensive README.md file with the following sections:
1. Project Title and Description: a summary of the application's purpose.
2. Setup Instructions: how to run the app locally (if applicable).
3. Usage Guide: how to use the application.
4. Code Explanation: a brief overview of the file structure and logic.
5. License Information: state that it is under the MIT License.

The README.md must be professional and complete.
---
`

// textExtensions are attachment types previewed as text.
var textExtensions = map[string]bool{
	".txt": true, ".csv": true, ".json": true, ".md": true,
	".html": true, ".css": true, ".js": true,
}

// BuildPrompt renders the full model prompt for in.
func BuildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString(systemRules)
	b.WriteString("\nPlease generate or modify the code for a web application based on the following requirements.\n\n")
	fmt.Fprintf(&b, "**Project Brief:**\n%s\n\n", in.Brief)

	b.WriteString("**Evaluation Checks (Your code must satisfy these):**\n")
	for _, c := range in.Checks {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	b.WriteString("\n**Attachments:**\n")
	b.WriteString(Summarize(in.Attachments))

	if in.Round > 1 && len(in.Existing) > 0 {
		b.WriteString("\n**This is a revision request. Please modify the following existing code based on the new brief.**\n")
		b.WriteString("**Crucially, you MUST also update the README.md to describe the new features and changes.**\n")
		b.WriteString("**Your response must include ALL necessary files for the project, including any unchanged files.**\n\n")
		b.WriteString("### EXISTING CODE TO REVISE ###\n")
		for _, name := range FileSet(in.Existing).Paths() {
			if isWorkflowPath(name) {
				continue
			}
			fmt.Fprintf(&b, "--- START FILE: %s ---\n%s\n--- END FILE: %s ---\n\n", name, in.Existing[name], name)
		}
	}
	return b.String()
}

// Summarize describes staged attachments for the prompt.
func Summarize(staged []staging.Staged) string {
	if len(staged) == 0 {
		return "No attachments provided.\n"
	}
	var b strings.Builder
	for _, st := range staged {
		ext := strings.ToLower(path.Ext(st.Name))
		if !textExtensions[ext] {
			fmt.Fprintf(&b, "- Filename: '%s'. (This is a binary image file. You MUST reference it in your HTML using an <img> tag, for example: <img src=\"%s\" alt=\"Logo\">)\n", st.Name, st.Name)
			continue
		}
		data, err := st.Read()
		if err != nil {
			fmt.Fprintf(&b, "- Filename: '%s'. (Could not read preview: %v)\n", st.Name, err)
			continue
		}
		preview := string(data)
		if ext == ".html" {
			preview = htmlText(preview)
		}
		fmt.Fprintf(&b, "- Filename: '%s'. Content preview: '%s...'\n", st.Name, truncate(preview, previewLimit))
	}
	return b.String()
}

func isWorkflowPath(name string) bool {
	return name == ".github" || strings.HasPrefix(name, ".github/")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// htmlText extracts visible text from an HTML document, collapsing whitespace.
func htmlText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var parts []string
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF || len(parts) > 0 {
				return strings.Join(parts, " ")
			}
			return doc
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "script" || string(name) == "style" {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); (string(name) == "script" || string(name) == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.Join(strings.Fields(string(z.Text())), " "); text != "" {
				parts = append(parts, text)
			}
		}
	}
}
