package services

import "strings"

const (
	PromptTemplateTopic   = "topic"
	PromptTemplateLecture = "lecture"
)

const topicPlaceholder = "{{TOPIC}}"

const microLectureVideoPromptTemplate = `You are generating a background video for an educational micro-lecture.

Topic:
{{TOPIC}}

VIDEO REQUIREMENTS:
- Generate exactly 1 video.
- Duration must be exactly 10 seconds.
- Format must be vertical (9:16).

CONTENT REQUIREMENTS:
- The visuals must clearly relate to the topic.
- The scene should visually represent the concept in a general way.
- Avoid literal narration-style storytelling.
- Avoid complex or busy compositions.
- The video must support spoken narration layered on top.

TEXT RESTRICTIONS:
- Do not use text in the video.
- Text is permitted only when the concept inherently requires equations or symbolic notation, and must stay minimal.
- No subtitles, captions, UI elements, logos or watermarks.

LOOPING REQUIREMENTS:
- The video must loop seamlessly; the first and last frames must visually align.
- No abrupt cuts or transitions.

STYLE:
- Short-form social media aesthetic, colorful, smooth intentional motion.
- Strong visual clarity and subject focus; visuals complement narration.

OUTPUT:
Return exactly one 10-second vertical (9:16) video file.
`

// BuildVideoPrompt: mặc định prompt chính là topic; "lecture" chèn topic (+ tiêu đề unit) vào template
func BuildVideoPrompt(template, topic, unitTitle string) string {
	topic = strings.TrimSpace(topic)
	if template != PromptTemplateLecture {
		return topic
	}
	subject := topic
	if t := strings.TrimSpace(unitTitle); t != "" {
		subject = topic + ": " + t
	}
	return strings.Replace(microLectureVideoPromptTemplate, topicPlaceholder, subject, 1)
}
