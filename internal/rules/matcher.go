package rules

import (
	"regexp"
	"strconv"
	"strings"

	"tradecmd/internal/intent"
	"tradecmd/internal/normalize"
)

// Confidence 为规则命中时的统一置信度。规则只覆盖无歧义的指令形态，
// 不做任何猜测，故置信度固定且不设为 1。
const Confidence = 0.95

// Matcher 维护一组有序的 模式→意图构造器 规则，最具体的排在最前，
// 首个命中即返回。纯内存匹配，无 I/O，亚毫秒级。
type Matcher struct {
	rules []rule
}

type rule struct {
	re *regexp.Regexp
	// build 接收规范化文本与保留大小写原文中的同位置捕获组。
	// 返回 false 表示该规则放弃本次输入（例如代码无法识别），
	// 继续尝试后续规则。
	build func(canon, orig []string) (intent.Intent, bool)
}

const (
	numPat = `(\d+(?:\.\d+)?)`
	symPat = `([a-z]{1,5}(?:\.[a-z])?)`
)

// NewMatcher 构造默认规则集。
func NewMatcher() *Matcher {
	return &Matcher{rules: defaultRules()}
}

// Match 依次尝试各规则，返回首个命中产生的意图。未命中不是错误，
// 仅表示交由下一层级处理。
func (m *Matcher) Match(cmd normalize.Command) (intent.Intent, bool) {
	for _, r := range m.rules {
		idx := r.re.FindStringSubmatchIndex(cmd.Canonical)
		if idx == nil {
			continue
		}
		canon := groupsAt(cmd.Canonical, idx)
		orig := groupsAt(cmd.Original, idx)
		if it, ok := r.build(canon, orig); ok {
			return it, true
		}
	}
	return intent.Intent{}, false
}

// groupsAt 按子匹配下标切出捕获组。Canonical 仅做了小写折叠，与
// Original 字节位置一一对应，因此同一组下标在两个串上都成立。
func groupsAt(s string, idx []int) []string {
	groups := make([]string, 0, len(idx)/2)
	for i := 0; i < len(idx); i += 2 {
		if idx[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, s[idx[i]:idx[i+1]])
	}
	return groups
}

// tickerPattern 要求原文中的代码必须为全大写，这是区分股票代码与
// 公司名的依据："AAPL" 命中规则，"Apple"/"tesla" 交给上游解析。
var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)

func resolveTicker(orig string) (string, bool) {
	if !tickerPattern.MatchString(orig) {
		return "", false
	}
	return orig, true
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func defaultRules() []rule {
	type spec struct {
		pattern string
		build   func(canon, orig []string) (intent.Intent, bool)
	}

	// 公共片段。shares/of 可省略："buy 10 aapl" 与 "buy 10 shares of aapl" 等价。
	const (
		verb      = `(buy|sell)`
		sharesOf  = `(?:shares? (?:of )?)?`
		dollarsOf = `(?:dollars |bucks )?(?:(?:worth )?of )?`
		limitKw   = `(?:at |with )?(?:a )?limit(?: price)?(?: of)?`
	)

	specs := []spec{
		// 按股数限价："buy 10 aapl limit $150"、"buy 10 shares of aapl at a limit of 150"
		{
			pattern: `^` + verb + ` ` + numPat + ` ` + sharesOf + symPat + ` ` + limitKw + ` \$?` + numPat + `$`,
			build: func(canon, orig []string) (intent.Intent, bool) {
				return buildStock(canon[1], orig[3], intent.AmountShares, parseAmount(canon[2]), intent.OrderLimit, parseAmount(canon[4]))
			},
		},
		// 按金额限价："buy $500 of aapl limit $150"
		{
			pattern: `^` + verb + ` \$` + numPat + ` ` + dollarsOf + symPat + ` ` + limitKw + ` \$?` + numPat + `$`,
			build: func(canon, orig []string) (intent.Intent, bool) {
				return buildStock(canon[1], orig[3], intent.AmountDollars, parseAmount(canon[2]), intent.OrderLimit, parseAmount(canon[4]))
			},
		},
		// "at $X" 视为限价："sell 5 msft at $400"
		{
			pattern: `^` + verb + ` ` + numPat + ` ` + sharesOf + symPat + ` (?:at|@) \$` + numPat + `$`,
			build: func(canon, orig []string) (intent.Intent, bool) {
				return buildStock(canon[1], orig[3], intent.AmountShares, parseAmount(canon[2]), intent.OrderLimit, parseAmount(canon[4]))
			},
		},
		// 说了 limit 却没给价格：仍然命中，让校验层报错而不是交给上游瞎猜。
		{
			pattern: `^` + verb + ` ` + numPat + ` ` + sharesOf + symPat + ` ` + limitKw + `$`,
			build: func(canon, orig []string) (intent.Intent, bool) {
				return buildStock(canon[1], orig[3], intent.AmountShares, parseAmount(canon[2]), intent.OrderLimit, 0)
			},
		},
		// 单腿期权："buy 2 aapl $150 calls 2026-01-16"
		{
			pattern: `^` + verb + ` ` + numPat + ` ` + symPat + ` \$?` + numPat + ` (call|put)s?(?: exp(?:iring|\.)?)? (\d{4}-\d{2}-\d{2})$`,
			build:   buildOption,
		},
		// 按金额市价："buy $500 of aapl"、"buy 500 dollars of aapl"
		{
			pattern: `^` + verb + ` \$` + numPat + ` ` + dollarsOf + symPat + `$`,
			build: func(canon, orig []string) (intent.Intent, bool) {
				return buildStock(canon[1], orig[3], intent.AmountDollars, parseAmount(canon[2]), intent.OrderMarket, 0)
			},
		},
		{
			pattern: `^` + verb + ` ` + numPat + ` (?:dollars|bucks) (?:(?:worth )?of )?` + symPat + `$`,
			build: func(canon, orig []string) (intent.Intent, bool) {
				return buildStock(canon[1], orig[3], intent.AmountDollars, parseAmount(canon[2]), intent.OrderMarket, 0)
			},
		},
		// 按股数市价："buy 100 shares of aapl"、"sell 3 brk.b"
		{
			pattern: `^` + verb + ` ` + numPat + ` ` + sharesOf + symPat + `$`,
			build: func(canon, orig []string) (intent.Intent, bool) {
				return buildStock(canon[1], orig[3], intent.AmountShares, parseAmount(canon[2]), intent.OrderMarket, 0)
			},
		},
	}

	rules := make([]rule, 0, len(specs))
	for _, s := range specs {
		rules = append(rules, rule{re: regexp.MustCompile(s.pattern), build: s.build})
	}
	return rules
}

func buildStock(verb, origSym string, amountType intent.AmountType, amount float64, orderType intent.OrderType, limitPrice float64) (intent.Intent, bool) {
	symbol, ok := resolveTicker(origSym)
	if !ok {
		return intent.Intent{}, false
	}
	return intent.Intent{
		Kind: intent.KindStock,
		Stock: &intent.StockIntent{
			Action:     intent.Action(verb),
			Symbol:     symbol,
			AmountType: amountType,
			Amount:     amount,
			OrderType:  orderType,
			LimitPrice: limitPrice,
		},
	}, true
}

func buildOption(canon, orig []string) (intent.Intent, bool) {
	underlying, ok := resolveTicker(orig[3])
	if !ok {
		return intent.Intent{}, false
	}
	qty, err := strconv.Atoi(canon[2])
	if err != nil {
		return intent.Intent{}, false
	}

	action := intent.ActionBuyToOpen
	if canon[1] == "sell" {
		action = intent.ActionSellToOpen
	}

	return intent.Intent{
		Kind: intent.KindOptions,
		Options: &intent.OptionsIntent{
			Action:         action,
			Underlying:     underlying,
			ContractType:   intent.ContractType(strings.TrimSuffix(canon[5], "s")),
			StrikePrice:    parseAmount(canon[4]),
			ExpirationDate: canon[6],
			Quantity:       qty,
			OrderType:      intent.OrderMarket,
			Strategy:       intent.StrategySingle,
		},
	}, true
}
