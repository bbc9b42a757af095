package intelligence

import (
	"fmt"
	"strings"

	"github.com/supportpulse/supportpulse/model"
)

const systemPrompt = "You are an analysis engine for a customer support platform. " +
	"Respond ONLY with valid JSON matching the requested schema, with no prose around it."

func sentimentPrompt(contextText string) string {
	return fmt.Sprintf(`Analyze the CUSTOMER'S CURRENT sentiment based on their LATEST message in this support conversation.
Focus on detecting sentiment changes - if the customer was frustrated but now sounds satisfied, reflect that change.

%s

IMPORTANT: Base your analysis primarily on the LATEST customer message. The context is provided for understanding, but the sentiment should reflect the customer's current emotional state.

Respond ONLY with valid JSON in this exact format:
{
  "sentiment": "positive" | "neutral" | "negative",
  "confidence": <number between 0 and 1>,
  "emotion": "angry" | "frustrated" | "satisfied" | "confused" | "urgent" | "happy" | "neutral",
  "reasoning": "<brief explanation of the customer's CURRENT emotional state>"
}`, contextText)
}

func piiPrompt(text string) string {
	return fmt.Sprintf(`Identify all personally identifiable information (PII) in this message.

Message:
"""
%s
"""

Detect and categorize:
- email addresses
- phone numbers
- credit card numbers (partial)
- SSN/national IDs
- physical addresses
- account numbers
- names

Respond with JSON:
{
  "hasPII": true | false,
  "entities": [
    {
      "type": "email" | "phone" | "credit_card" | "ssn" | "address" | "account_number" | "name",
      "value": "[REDACTED]",
      "startIndex": <number>,
      "endIndex": <number>
    }
  ],
  "redactedText": "<message with [REDACTED] in place of PII>"
}`, text)
}

func insightsPrompt(contextText string) string {
	return fmt.Sprintf(`Analyze this support conversation and extract key insights.

Conversation:
"""
%s
"""

IMPORTANT: Analyze customer sentiment/mood from their language and tone. If the customer is frustrated, angry, or highly dissatisfied:
- Suggest offering compensation (discount, refund, credit)
- Recommend empathy and acknowledgment
- Prioritize quick resolution to retain the customer

Respond with JSON:
{
  "intent": "Refund Request" | "Technical Issue" | "Billing Inquiry" | "Feature Request" | "Complaint" | "General Inquiry" | "Account Issue" | "Cancellation",
  "urgency": "Low" | "Medium" | "High" | "Critical",
  "categories": ["<category1>", "<category2>"],
  "suggestedActions": ["<action1>", "<action2>"],
  "requiresEscalation": true | false,
  "estimatedResolutionTime": "< 1 hour" | "1-4 hours" | "4-24 hours" | "1-3 days",
  "keyConcerns": ["<concern1>", "<concern2>"]
}`, contextText)
}

func summarizePrompt(transcript string) string {
	return fmt.Sprintf(`Summarize this support conversation.

Conversation:
"""
%s
"""

Provide a structured summary in JSON:
{
  "tldr": "<1-sentence summary>",
  "customerIssue": "<what customer needs>",
  "agentResponse": "<brief description or null>",
  "keyPoints": ["<point1>", "<point2>"],
  "nextSteps": ["<step1>", "<step2>"]
}`, transcript)
}

func updateSummaryPrompt(old *model.SummaryResult, newMessage string, sender model.MessageSender) string {
	var context string
	if old != nil {
		context = fmt.Sprintf(`Previous Summary:
- TLDR: %s
- Issue: %s
- Key Points: %s
- Next Steps: %s`,
			old.TLDR, old.CustomerIssue,
			strings.Join(old.KeyPoints, ", "),
			strings.Join(old.NextSteps, ", "))
	} else {
		context = "No previous summary (start of conversation)."
	}

	return fmt.Sprintf(`Update the support conversation summary with the new message.

%s

New Message from %s:
"%s"

Provide an updated structured summary in JSON:
{
  "tldr": "<updated 1-sentence summary>",
  "customerIssue": "<updated customer needs>",
  "agentResponse": "<updated brief description or null>",
  "keyPoints": ["<updated point1>", "<updated point2>"],
  "nextSteps": ["<updated step1>", "<updated step2>"]
}`, context, sender, newMessage)
}

func replyPrompt(contextText, userMessage string) string {
	return fmt.Sprintf(`You are a helpful assistant for a customer support platform.
Generate a professional, empathetic, and helpful response to the customer's message.

Conversation History:
"""
%s
"""

Latest Customer Message:
"""
%s
"""

Guidelines:
- Be professional and empathetic
- Acknowledge the customer's concern
- Provide helpful information or next steps
- Keep the response concise (2-4 sentences)
- If the issue requires human escalation, suggest that

Respond with JSON containing only the response text:
{
  "response": "<your generated response here>"
}`, contextText, userMessage)
}
