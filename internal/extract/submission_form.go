package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const submissionFormSelector = "form#submit_quiz_form"

// SubmissionForm 提交表单的落点和必须原样回传的隐藏字段。
type SubmissionForm struct {
	Action string
	Hidden url.Values
}

// ExtractSubmissionForm 从作答页面取出提交表单。action 可能是相对路径，
// 需要按当前页面URL解析成绝对地址。
func ExtractSubmissionForm(doc *goquery.Document) (*SubmissionForm, error) {
	formSel := doc.Find(submissionFormSelector).First()
	if formSel.Length() == 0 {
		return nil, fmt.Errorf("页面中未找到提交表单 (%s)", submissionFormSelector)
	}

	action := strings.TrimSpace(formSel.AttrOr("action", ""))
	if action == "" {
		return nil, fmt.Errorf("提交表单缺少 action 属性")
	}
	actionURL, err := url.Parse(action)
	if err != nil {
		return nil, fmt.Errorf("解析表单 action '%s' 失败: %w", action, err)
	}
	if doc.Url != nil {
		actionURL = doc.Url.ResolveReference(actionURL)
	}

	hidden := url.Values{}
	formSel.Find("input[type='hidden']").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		// 同名隐藏字段（数组字段）要逐个原样回传，不能合并
		hidden.Add(name, input.AttrOr("value", ""))
	})

	return &SubmissionForm{Action: actionURL.String(), Hidden: hidden}, nil
}
