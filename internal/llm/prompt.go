package llm

import (
	"bytes"
	"fmt"
	"text/template"
)

const resolveTemplate = `
你是一个专业的美股经纪指令解析器。你的任务是把用户的自然语言交易指令转换成结构化的交易意图，只做解析，不做任何投资建议。

用户指令：
{{ printf "%q" .Text }}

解析时请遵循：
1. 先判断是股票指令还是期权指令；
2. 公司名需要转换为交易所代码（如 Apple → AAPL, Tesla → TSLA）；
3. 金额与股数严格区分："$500 of AAPL" 是金额, "500 AAPL" 是股数；
4. 提到 limit/限价 必须填写 order_type="limit" 并给出 limit_price；
5. 指令缺少关键信息或存在多种合理解释时，不要猜测，返回歧义标记。

请严格输出唯一的 JSON 对象，格式如下：
{
  "ambiguous": false,                    // 无法消歧时填 true，并在 question 中给出要向用户澄清的问题
  "question": "",                        // 仅在 ambiguous=true 时填写
  "intent": {
    "kind": "stock|options",
    "stock": {                           // kind=stock 时填写，否则省略
      "action": "buy|sell",
      "symbol": "AAPL",                  // 1-5个大写字母，允许 BRK.B 形式
      "amount_type": "dollars|shares",
      "amount": 0.0,                     // 严格为正
      "order_type": "market|limit",
      "limit_price": 0.0                 // 仅限价单填写，严格为正
    },
    "options": {                         // kind=options 时填写，否则省略
      "action": "buy_to_open|sell_to_open|buy_to_close|sell_to_close",
      "underlying": "AAPL",
      "contract_type": "call|put",
      "strike_price": 0.0,
      "expiration_date": "2026-01-16",   // YYYY-MM-DD
      "quantity": 1,                     // 正整数
      "order_type": "market|limit",
      "limit_price": 0.0,
      "strategy": "single|covered_call|cash_secured_put|vertical_call|vertical_put"
    }
  }
}

注意事项：
- 只输出 JSON，不要输出任何解释性文字。
- stock 与 options 两个字段有且仅有一个出现。
- 所有价格与数量必须为正数；市价单请勿携带 limit_price。
`

var tmpl = template.Must(template.New("resolve").Parse(resolveTemplate))

type promptContext struct {
	Text string
}

// BuildPrompt 将用户指令渲染为提示词。
func BuildPrompt(text string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptContext{Text: text}); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}
	return buf.String(), nil
}
