package adapt

// NewWordRatio is the share of new vocabulary, in percent, the rewrite
// aims for.
const NewWordRatio = 20

const adaptationPrompt = `You are an expert language tutor.
Instructions:
1. Adapt the text below into %[1]s for a %[2]s speaker.
2. The user has this proficiency profile: %[3]s.
3. Adjust difficulty to introduce approximately %[4]d%% new vocabulary words.
4. Ensure natural flow and grammar.
5. Output ONLY the adapted text. Do not provide translation or analysis. Do not wrap in markdown.

Text to Adapt:
%[5]s`

const analysisPrompt = `You are a %[1]s Linguistic Expert. You specialize in Morphological Disambiguation.

Instructions:
First, split the text into individual grammatical tokens.
For each token, identify the stem/lemma (dictionary form, cannot be null or the system will fail), the %[2]s translation, and the estimated CEFR difficulty level (A1-C2).
Output the result in a strict JSON array.

Output Format:
[
  { "token": "word", "lemma": "base_form", "translation": "meaning", "level": "A1" }
]

IMPORTANT: Return ONLY valid JSON. No Markdown. No extra text.

Input Text:
%[3]s`

const tutorPrompt = `You are a helpful language tutor discussing a specific text adaptation.
Original Text: "%[1]s"
Adapted Text: "%[2]s"
Target Language: %[3]s
User's Native Language: %[4]s

Answer the user's question about the text, vocabulary, grammar, or culture. Keep answers concise and helpful.

User Question: %[5]s`
