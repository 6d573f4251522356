package intent

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind 标识意图的变体。
type Kind string

const (
	KindStock   Kind = "stock"
	KindOptions Kind = "options"
)

// Action 表示股票交易方向。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// OptionsAction 表示期权交易方向。
type OptionsAction string

const (
	ActionBuyToOpen   OptionsAction = "buy_to_open"
	ActionSellToOpen  OptionsAction = "sell_to_open"
	ActionBuyToClose  OptionsAction = "buy_to_close"
	ActionSellToClose OptionsAction = "sell_to_close"
)

// AmountType 区分金额类型。
type AmountType string

const (
	AmountDollars AmountType = "dollars"
	AmountShares  AmountType = "shares"
)

// OrderType 区分下单方式。
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// ContractType 区分期权合约类型。
type ContractType string

const (
	ContractCall ContractType = "call"
	ContractPut  ContractType = "put"
)

// Strategy 标识期权策略。
type Strategy string

const (
	StrategySingle       Strategy = "single"
	StrategyCoveredCall  Strategy = "covered_call"
	StrategyCashSecured  Strategy = "cash_secured_put"
	StrategyVerticalCall Strategy = "vertical_call"
	StrategyVerticalPut  Strategy = "vertical_put"
)

// ExpirationLayout 为到期日的标准格式。
const ExpirationLayout = "2006-01-02"

// StockIntent 表示一条股票交易意图。
type StockIntent struct {
	Action     Action     `json:"action"`
	Symbol     string     `json:"symbol"`
	AmountType AmountType `json:"amount_type"`
	Amount     float64    `json:"amount"`
	OrderType  OrderType  `json:"order_type"`
	LimitPrice float64    `json:"limit_price,omitempty"`
}

// OptionsIntent 表示一条期权交易意图。
type OptionsIntent struct {
	Action         OptionsAction `json:"action"`
	Underlying     string        `json:"underlying"`
	ContractType   ContractType  `json:"contract_type"`
	StrikePrice    float64       `json:"strike_price"`
	ExpirationDate string        `json:"expiration_date"`
	Quantity       int           `json:"quantity"`
	OrderType      OrderType     `json:"order_type"`
	LimitPrice     float64       `json:"limit_price,omitempty"`
	Strategy       Strategy      `json:"strategy"`
}

// Intent 为带标签的联合体，Kind 指明唯一被填充的变体。该结构同时充当
// 大模型输出的 JSON 载体。
type Intent struct {
	Kind    Kind           `json:"kind"`
	Stock   *StockIntent   `json:"stock,omitempty"`
	Options *OptionsIntent `json:"options,omitempty"`
}

var (
	symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)

	validActions = map[Action]struct{}{
		ActionBuy:  {},
		ActionSell: {},
	}
	validOptionsActions = map[OptionsAction]struct{}{
		ActionBuyToOpen:   {},
		ActionSellToOpen:  {},
		ActionBuyToClose:  {},
		ActionSellToClose: {},
	}
	validAmountTypes = map[AmountType]struct{}{
		AmountDollars: {},
		AmountShares:  {},
	}
	validOrderTypes = map[OrderType]struct{}{
		OrderMarket: {},
		OrderLimit:  {},
	}
	validContractTypes = map[ContractType]struct{}{
		ContractCall: {},
		ContractPut:  {},
	}
	validStrategies = map[Strategy]struct{}{
		StrategySingle:       {},
		StrategyCoveredCall:  {},
		StrategyCashSecured:  {},
		StrategyVerticalCall: {},
		StrategyVerticalPut:  {},
	}
)

// ValidationError 表示意图未通过结构性校验。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("意图校验失败: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate 校验意图字段合法性：有且仅有一个变体被填充，金额/行权价/
// 限价严格为正，限价单必须给出限价。
func (i Intent) Validate() error {
	switch i.Kind {
	case KindStock:
		if i.Stock == nil || i.Options != nil {
			return invalid("kind", "stock 变体必须且只能填充 stock 字段")
		}
		return i.Stock.validate()
	case KindOptions:
		if i.Options == nil || i.Stock != nil {
			return invalid("kind", "options 变体必须且只能填充 options 字段")
		}
		return i.Options.validate()
	default:
		return invalid("kind", fmt.Sprintf("取值非法: %q", string(i.Kind)))
	}
}

func (s *StockIntent) validate() error {
	if _, ok := validActions[s.Action]; !ok {
		return invalid("action", fmt.Sprintf("取值非法: %q", string(s.Action)))
	}
	if !symbolPattern.MatchString(s.Symbol) {
		return invalid("symbol", fmt.Sprintf("须为1-5个大写字母: %q", s.Symbol))
	}
	if _, ok := validAmountTypes[s.AmountType]; !ok {
		return invalid("amount_type", fmt.Sprintf("取值非法: %q", string(s.AmountType)))
	}
	if s.Amount <= 0 {
		return invalid("amount", fmt.Sprintf("必须严格为正, 当前为 %v", s.Amount))
	}
	if _, ok := validOrderTypes[s.OrderType]; !ok {
		return invalid("order_type", fmt.Sprintf("取值非法: %q", string(s.OrderType)))
	}
	if s.OrderType == OrderLimit && s.LimitPrice <= 0 {
		return invalid("limit_price", "限价单必须给出正的限价")
	}
	if s.OrderType == OrderMarket && s.LimitPrice != 0 {
		return invalid("limit_price", "市价单不应携带限价")
	}
	return nil
}

func (o *OptionsIntent) validate() error {
	if _, ok := validOptionsActions[o.Action]; !ok {
		return invalid("action", fmt.Sprintf("取值非法: %q", string(o.Action)))
	}
	if !symbolPattern.MatchString(o.Underlying) {
		return invalid("underlying", fmt.Sprintf("须为1-5个大写字母: %q", o.Underlying))
	}
	if _, ok := validContractTypes[o.ContractType]; !ok {
		return invalid("contract_type", fmt.Sprintf("取值非法: %q", string(o.ContractType)))
	}
	if o.StrikePrice <= 0 {
		return invalid("strike_price", fmt.Sprintf("必须严格为正, 当前为 %v", o.StrikePrice))
	}
	if _, err := time.Parse(ExpirationLayout, o.ExpirationDate); err != nil {
		return invalid("expiration_date", fmt.Sprintf("须为 %s 格式日期: %q", ExpirationLayout, o.ExpirationDate))
	}
	if o.Quantity <= 0 {
		return invalid("quantity", fmt.Sprintf("必须为正整数, 当前为 %d", o.Quantity))
	}
	if _, ok := validOrderTypes[o.OrderType]; !ok {
		return invalid("order_type", fmt.Sprintf("取值非法: %q", string(o.OrderType)))
	}
	if o.OrderType == OrderLimit && o.LimitPrice <= 0 {
		return invalid("limit_price", "限价单必须给出正的限价")
	}
	if _, ok := validStrategies[o.Strategy]; !ok {
		return invalid("strategy", fmt.Sprintf("取值非法: %q", string(o.Strategy)))
	}
	return nil
}

// Describe 返回意图的单行摘要，用于日志输出。
func (i Intent) Describe() string {
	switch i.Kind {
	case KindStock:
		if i.Stock == nil {
			return "stock(空)"
		}
		s := i.Stock
		unit := "shares"
		if s.AmountType == AmountDollars {
			unit = "USD"
		}
		desc := fmt.Sprintf("%s %v %s %s %s", s.Action, s.Amount, unit, s.Symbol, s.OrderType)
		if s.OrderType == OrderLimit {
			desc += fmt.Sprintf(" @%v", s.LimitPrice)
		}
		return desc
	case KindOptions:
		if i.Options == nil {
			return "options(空)"
		}
		o := i.Options
		return fmt.Sprintf("%s %dx %s %v %s %s",
			o.Action, o.Quantity, o.Underlying, o.StrikePrice, o.ContractType, o.ExpirationDate)
	default:
		return "unknown"
	}
}

// NormalizeEnums 将大模型可能返回的大小写/连字符变体折叠为标准枚举值。
func (i *Intent) NormalizeEnums() {
	i.Kind = Kind(canon(string(i.Kind)))
	if i.Stock != nil {
		i.Stock.Action = Action(canon(string(i.Stock.Action)))
		i.Stock.AmountType = AmountType(canon(string(i.Stock.AmountType)))
		i.Stock.OrderType = OrderType(canon(string(i.Stock.OrderType)))
		i.Stock.Symbol = strings.ToUpper(strings.TrimSpace(i.Stock.Symbol))
	}
	if i.Options != nil {
		i.Options.Action = OptionsAction(canon(string(i.Options.Action)))
		i.Options.ContractType = ContractType(canon(string(i.Options.ContractType)))
		i.Options.OrderType = OrderType(canon(string(i.Options.OrderType)))
		i.Options.Strategy = Strategy(canon(string(i.Options.Strategy)))
		i.Options.Underlying = strings.ToUpper(strings.TrimSpace(i.Options.Underlying))
	}
}

func canon(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "_")
}
