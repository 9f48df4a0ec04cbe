package promotion

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// DiscountType 定义了优惠的计算方式。
type DiscountType string

const (
	DiscountTypeFixedAmount DiscountType = "FIXED_AMOUNT" // 满减/立减
	DiscountTypePercentage  DiscountType = "PERCENTAGE"   // 折扣
)

// Rule 是一条优惠规则。Expression 是适用条件 (LHS)，
// 其余字段描述命中后的优惠计算 (RHS)。
type Rule struct {
	Code        string
	Description string

	// Expression 是一个 CEL 表达式，对 Fact 求值，必须返回 bool。
	// e.g. `subtotal >= 20000 && item_count >= 2`
	Expression string

	Type DiscountType

	// AmountCents 满减金额，仅 FIXED_AMOUNT 使用。
	AmountCents int64
	// Percent 折扣百分比 (12 表示减 12%)，仅 PERCENTAGE 使用。
	Percent int64
	// CeilingCents 折扣上限，0 表示不封顶。
	CeilingCents int64
}

// Fact 是规则求值的事实输入，字段名即 CEL 变量名。
type Fact struct {
	SubtotalCents int64
	ItemCount     int64
	CustomerTier  string
}

// Quote 是一次择优结果。
type Quote struct {
	Code          string `json:"code"`
	Description   string `json:"description"`
	DiscountCents int64  `json:"discountCents"`
}

type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// Engine 持有一组预编译的规则。规则在构造时编译一次，
// 之后的求值是无锁只读的，可以被多个请求并发使用。
type Engine struct {
	rules []compiledRule
}

// NewEngine 编译全部规则。任何一条表达式非法都会直接失败，
// 避免把坏规则带到线上再在请求路径里报错。
func NewEngine(rules []Rule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.IntType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("tier", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}

	e := &Engine{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, iss := env.Compile(r.Expression)
		if iss != nil && iss.Err() != nil {
			return nil, errors.Wrapf(iss.Err(), "compile rule %s", r.Code)
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.Code, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "program rule %s", r.Code)
		}
		e.rules = append(e.rules, compiledRule{rule: r, prg: prg})
	}
	return e, nil
}

// BestDiscount 对所有规则求值，返回优惠金额最大的一条。
// 规则互斥不叠加。没有规则命中时返回零值 Quote。
func (e *Engine) BestDiscount(fact Fact) (Quote, error) {
	vars := map[string]interface{}{
		"subtotal":   fact.SubtotalCents,
		"item_count": fact.ItemCount,
		"tier":       fact.CustomerTier,
	}

	var quotes []Quote
	for _, cr := range e.rules {
		out, _, err := cr.prg.Eval(vars)
		if err != nil {
			return Quote{}, errors.Wrapf(err, "eval rule %s", cr.rule.Code)
		}
		matched, ok := out.Value().(bool)
		if !ok || !matched {
			continue
		}
		quotes = append(quotes, Quote{
			Code:          cr.rule.Code,
			Description:   cr.rule.Description,
			DiscountCents: discountOf(cr.rule, fact),
		})
	}
	if len(quotes) == 0 {
		return Quote{}, nil
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].DiscountCents > quotes[j].DiscountCents })
	return quotes[0], nil
}

func discountOf(r Rule, fact Fact) int64 {
	var d int64
	switch r.Type {
	case DiscountTypeFixedAmount:
		d = r.AmountCents
	case DiscountTypePercentage:
		d = fact.SubtotalCents * r.Percent / 100
		if r.CeilingCents > 0 && d > r.CeilingCents {
			d = r.CeilingCents
		}
	}
	// 优惠不会超过小计本身，否则订单校验必然失败。
	if d > fact.SubtotalCents {
		d = fact.SubtotalCents
	}
	return d
}
