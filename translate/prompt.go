package translate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minios-linux/xcloc/langmeta"
)

// systemPromptTemplate is the instruction block of the primary request.
// {{context}}, {{sourceLang}}, {{targetLang}} and {{count}} are substituted.
const systemPromptTemplate = `You are a professional iOS app translator specializing in UI/UX localization. You are translating for: {{context}}

Your task is to translate app interface strings from {{sourceLang}} to {{targetLang}}.

INSTRUCTIONS:
1. Return a JSON object with the exact same structure as the input
2. Keys remain UNCHANGED (they are string identifiers)
3. Values are TRANSLATED to {{targetLang}}
4. Include ALL {{count}} keys from the input

CRITICAL RULES FOR iOS PLACEHOLDERS:
- Keep %@ as %@ (NOT %1$@ or %s)
- Keep %lld as %lld (NOT %1$lld or %d)
- Keep %d as %d (NOT %1$d)
- Keep all other placeholders UNCHANGED
- Do NOT add positional indicators like %1$, %2$, etc.
- The order and format of placeholders must remain EXACTLY the same

Example input: {"welcome": "Hello %@", "%lld job%@": "%lld job%@"}
Example output: {"welcome": "Hola %@", "%lld job%@": "%lld trabajo%@"}

Use appropriate terminology for the app domain. Always respond with valid JSON only.`

const retryPromptTemplate = `You are translating iOS app strings from {{sourceLang}} to {{targetLang}}.

Return ONLY a JSON object with the exact same keys as the input. Translate ONLY the values.
Keep all iOS placeholders (%@, %d, %lld, etc.) exactly as they are.

Example: {"key": "Hello %@"} -> {"key": "Hola %@"}`

// languageLabel renders a code for prompts, e.g. "German (de)".
func languageLabel(code string) string {
	name := langmeta.Name(code)
	if name == code {
		return code
	}
	return fmt.Sprintf("%s (%s)", name, code)
}

func systemPrompt(req Request, count int) string {
	appContext := strings.TrimSpace(req.AppContext)
	if appContext == "" {
		appContext = "an app"
	}
	r := strings.NewReplacer(
		"{{context}}", appContext,
		"{{sourceLang}}", languageLabel(req.SourceLanguage),
		"{{targetLang}}", languageLabel(req.TargetLanguage),
		"{{count}}", fmt.Sprint(count),
	)
	return r.Replace(systemPromptTemplate)
}

func retrySystemPrompt(req Request) string {
	r := strings.NewReplacer(
		"{{sourceLang}}", languageLabel(req.SourceLanguage),
		"{{targetLang}}", languageLabel(req.TargetLanguage),
	)
	return r.Replace(retryPromptTemplate)
}

func userPrompt(req Request, batch []string) (string, error) {
	payload, err := encodeBatch(req, batch, "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Translate this JSON to %s:\n%s", languageLabel(req.TargetLanguage), payload), nil
}

func retryUserPrompt(req Request, batch []string) (string, error) {
	payload, err := encodeBatch(req, batch, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Translate to %s:\n%s", languageLabel(req.TargetLanguage), payload), nil
}

// encodeBatch renders the key to source text mapping of batch as a JSON
// object in batch order, without HTML escaping.
func encodeBatch(req Request, batch []string, indent string) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range batch {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(key)
		if err != nil {
			return "", err
		}
		v, err := marshalNoEscape(req.source(key))
		if err != nil {
			return "", err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	if indent == "" {
		return buf.String(), nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", indent); err != nil {
		return "", err
	}
	return out.String(), nil
}

func marshalNoEscape(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
