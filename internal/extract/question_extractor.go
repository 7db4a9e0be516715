package extract

import (
	"fmt"
	"log"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"Canvas-Auto-Quiz-Backend/internal/model"

	"github.com/PuerkitoBio/goquery"
)

const (
	questionContainerSelector = "div#questions"
	questionSelector          = "div#questions div.question"
	answerPrefixFormat        = "question_%s_answer_"
	defaultImageExt           = ".png"
)

// HasQuestionContainer 题目容器只在作答进行中出现，它是判断作答状态的唯一依据。
func HasQuestionContainer(doc *goquery.Document) bool {
	return doc.Find(questionContainerSelector).Length() > 0
}

// Extraction 是一次解析的完整输出。Media 以来源URL为键，
// 同一URL在所有题目/选项间共享同一个 *MediaRef，下载阶段据此去重。
type Extraction struct {
	Questions []*model.Question
	Media     map[string]*model.MediaRef
}

type extractor struct {
	baseURL  *url.URL
	mediaDir string
	media    map[string]*model.MediaRef
}

// ExtractQuestions 把作答页面解析为按文档顺序排列的题目模型。
// 页面上的题型五花八门，解析不出ID的题目或选项直接丢弃而不是报错；
// 但整卷一题都解析不出来视为致命错误。
func ExtractQuestions(doc *goquery.Document, mediaDir string) (*Extraction, error) {
	e := &extractor{
		baseURL:  doc.Url,
		mediaDir: mediaDir,
		media:    make(map[string]*model.MediaRef),
	}

	var questions []*model.Question
	doc.Find(questionSelector).Each(func(_ int, sel *goquery.Selection) {
		q := e.extractQuestion(sel)
		if q == nil {
			return
		}
		questions = append(questions, q)
	})

	if len(questions) == 0 {
		return nil, fmt.Errorf("未能从页面中解析出任何题目")
	}

	log.Printf("[Extract] 解析完成: %d 道题目, %d 个媒体文件。", len(questions), len(e.media))
	return &Extraction{Questions: questions, Media: e.media}, nil
}

func (e *extractor) extractQuestion(sel *goquery.Selection) *model.Question {
	qid := questionID(sel)
	if qid == "" {
		log.Printf("[Extract] 警告: 跳过一道无法解析ID的题目。")
		return nil
	}

	q := &model.Question{
		ID:   qid,
		Text: strings.TrimSpace(sel.Find("div.question_text").First().Text()),
	}

	sel.Find("div.question_text img").Each(func(i int, img *goquery.Selection) {
		if ref := e.mediaRef(img, fmt.Sprintf("q_%s_%d", qid, i)); ref != nil {
			q.Images = append(q.Images, ref)
		}
	})

	answerPrefix := fmt.Sprintf(answerPrefixFormat, qid)
	sel.Find("div.answer").Each(func(_ int, ansSel *goquery.Selection) {
		a := e.extractAnswer(ansSel, answerPrefix)
		if a == nil {
			return
		}
		q.Answers = append(q.Answers, *a)
	})

	return q
}

func (e *extractor) extractAnswer(sel *goquery.Selection, idPrefix string) *model.Answer {
	input := sel.Find("input[type='radio']").First()
	if input.Length() == 0 {
		return nil
	}

	aid := strings.TrimSpace(input.AttrOr("value", ""))
	if aid == "" {
		// 备用方案：部分题型的 radio 没有 value，从 input 的 id 里剥前缀
		inputID := input.AttrOr("id", "")
		if strings.HasPrefix(inputID, idPrefix) {
			aid = strings.TrimPrefix(inputID, idPrefix)
		}
	}
	if aid == "" {
		log.Printf("[Extract] 警告: 跳过一个无法解析ID的选项。")
		return nil
	}

	a := &model.Answer{
		ID:   aid,
		Text: strings.TrimSpace(sel.Find("label").First().Text()),
	}
	sel.Find("img").Each(func(i int, img *goquery.Selection) {
		if ref := e.mediaRef(img, fmt.Sprintf("a_%s_%d", aid, i)); ref != nil {
			a.Images = append(a.Images, ref)
		}
	})
	return a
}

// questionID 题目节点自身或其内嵌元素带有形如 question_123 的 id，123 即题目ID。
// 选项的 input id (question_123_answer_456) 也以同样前缀开头，需要跳过。
func questionID(sel *goquery.Selection) string {
	if qid := parseQuestionID(sel.AttrOr("id", "")); qid != "" {
		return qid
	}
	qid := ""
	sel.Find("[id^='question_']").EachWithBreak(func(_ int, inner *goquery.Selection) bool {
		qid = parseQuestionID(inner.AttrOr("id", ""))
		return qid == ""
	})
	return qid
}

func parseQuestionID(id string) string {
	qid := strings.TrimPrefix(id, "question_")
	if qid == id || qid == "" || strings.Contains(qid, "_") {
		return ""
	}
	return qid
}

// mediaRef 同一来源URL只建一个 MediaRef，先到者决定本地文件名。
func (e *extractor) mediaRef(img *goquery.Selection, baseName string) *model.MediaRef {
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" {
		return nil
	}
	absURL := e.absolutize(src)
	if absURL == "" {
		return nil
	}
	if ref, ok := e.media[absURL]; ok {
		return ref
	}
	ref := &model.MediaRef{
		SourceURL: absURL,
		LocalPath: filepath.Join(e.mediaDir, baseName+imageExt(absURL)),
	}
	e.media[absURL] = ref
	return ref
}

func (e *extractor) absolutize(src string) string {
	parsed, err := url.Parse(src)
	if err != nil {
		log.Printf("[Extract] 警告: 无法解析图片地址 '%s': %v", src, err)
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	if e.baseURL == nil {
		return ""
	}
	return e.baseURL.ResolveReference(parsed).String()
}

func imageExt(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return defaultImageExt
	}
	ext := path.Ext(parsed.Path)
	if ext == "" || len(ext) > 5 {
		return defaultImageExt
	}
	return ext
}
