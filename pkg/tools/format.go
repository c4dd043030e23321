package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rawi-voice/rawi/pkg/retrieval"
	"github.com/rawi-voice/rawi/pkg/tools/adapters/tavily"
	"github.com/rawi-voice/rawi/pkg/tools/adapters/weatherapi"
)

// User-facing degraded-result statements. These are spoken by the model, so
// they stay in the conversation language.
const (
	msgNoKnowledge      = "لم أجد معلومات ذات صلة في قاعدة المعرفة."
	msgKnowledgeFailure = "عذراً، حدث خطأ أثناء البحث في قاعدة المعرفة."
	msgNoSearchResults  = "لم أجد نتائج ذات صلة بهذا الموضوع."
	msgSearchFailure    = "عذراً، حدث خطأ أثناء البحث على الإنترنت."
)

const passageMaxChars = 300

func msgWeatherFailure(city string) string {
	return "عذراً، لم أتمكن من الحصول على الطقس لـ " + city
}

func formatPassages(passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return msgNoKnowledge
	}
	var b strings.Builder
	b.WriteString("المعلومات من قاعدة المعرفة:\n\n")
	for i, passage := range passages {
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, truncateRunes(passage.Text, passageMaxChars))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatConditions(c *weatherapi.Conditions) string {
	location := c.City
	if c.Country != "" {
		location += ", " + c.Country
	}
	var b strings.Builder
	fmt.Fprintf(&b, "الطقس في %s:\n", location)
	fmt.Fprintf(&b, "- درجة الحرارة: %s°C\n", formatFloat(c.TempC))
	fmt.Fprintf(&b, "- الإحساس بالحرارة: %s°C\n", formatFloat(c.FeelsLikeC))
	fmt.Fprintf(&b, "- الرطوبة: %d%%\n", c.Humidity)
	fmt.Fprintf(&b, "- الحالة: %s\n", c.Condition)
	fmt.Fprintf(&b, "- سرعة الرياح: %s كم/ساعة", formatFloat(c.WindKPH))
	return b.String()
}

func formatHits(hits []tavily.Hit, snippetMaxChars int) string {
	if len(hits) == 0 {
		return msgNoSearchResults
	}
	var b strings.Builder
	b.WriteString("نتائج البحث:\n\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, hit.Title)
		fmt.Fprintf(&b, "   %s\n", truncateRunes(hit.Snippet, snippetMaxChars))
		fmt.Fprintf(&b, "   المصدر: %s\n\n", hit.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// truncateRunes bounds s to max runes, appending an ellipsis when truncated.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
