package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// 饮食限制（枚举）。
const (
	RestrictionNone       = "none"
	RestrictionVegetarian = "vegetarian"
	RestrictionVegan      = "vegan"
	RestrictionGlutenFree = "gluten-free"
	RestrictionDairyFree  = "dairy-free"
)

// 烹饪水平（枚举）。
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// DietaryProfile 是用户饮食画像。
//
// 它不是某一个 Node，而是：
//   - 每次推荐请求读取一次（一次原子读取）
//   - 驱动过滤 Pipeline（过敏 → 饮食限制 → 营养 → 不喜欢的配料 → 准备时间）
//   - 由用户显式创建/更新/删除，推荐核心只读
type DietaryProfile struct {
	UserID int64 `json:"user_id" validate:"gte=0"`

	Allergies           []string `json:"allergies" validate:"dive,required"`
	DietaryRestrictions []string `json:"dietary_restrictions" validate:"dive,oneof=none vegetarian vegan gluten-free dairy-free"`
	DislikedIngredients []string `json:"disliked_ingredients" validate:"dive,required"`
	FavoriteCuisines    []string `json:"favorite_cuisines"`

	// 营养上下限（可选）
	MaxCalories *float64 `json:"max_calories,omitempty" validate:"omitempty,gt=0"`
	MinProtein  *float64 `json:"min_protein,omitempty" validate:"omitempty,gte=0"`
	MaxCarbs    *float64 `json:"max_carbs,omitempty" validate:"omitempty,gte=0"`
	MaxFat      *float64 `json:"max_fat,omitempty" validate:"omitempty,gte=0"`

	MaxPrepTime *float64 `json:"max_prep_time,omitempty" validate:"omitempty,gt=0"`

	SkillLevel          string `json:"skill_level,omitempty" validate:"omitempty,oneof=beginner intermediate advanced"`
	SpiceTolerance      int    `json:"spice_tolerance" validate:"min=0,max=10"`
	SweetnessPreference int    `json:"sweetness_preference" validate:"min=0,max=10"`

	UpdateTime time.Time `json:"update_time"`
}

// ErrRestrictionConflict 表示 "none" 与其他饮食限制同时出现。
var ErrRestrictionConflict = errors.New(`dietary_restrictions: "none" cannot be combined with other restrictions`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func profileValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// NewDietaryProfile 创建一个空画像。
func NewDietaryProfile(userID int64) *DietaryProfile {
	return &DietaryProfile{
		UserID:     userID,
		UpdateTime: time.Now(),
	}
}

// Normalize 规范化集合字段（小写、去空白、去重）。
func (p *DietaryProfile) Normalize() {
	p.Allergies = normalizeSet(p.Allergies)
	p.DietaryRestrictions = normalizeSet(p.DietaryRestrictions)
	p.DislikedIngredients = normalizeSet(p.DislikedIngredients)
	p.FavoriteCuisines = normalizeSet(p.FavoriteCuisines)
}

// Validate 用创建时的 schema 校验画像；"none" 与其他限制互斥。
func (p *DietaryProfile) Validate() error {
	if p == nil {
		return NewInvalidInputError(ModuleProfile, errors.New("nil profile"))
	}
	if err := profileValidator().Struct(p); err != nil {
		return NewInvalidInputError(ModuleProfile, err)
	}
	if p.HasRestriction(RestrictionNone) && len(p.ActiveRestrictions()) > 0 {
		return NewInvalidInputError(ModuleProfile, ErrRestrictionConflict)
	}
	return nil
}

// HasRestriction 检查是否声明了某个饮食限制。
func (p *DietaryProfile) HasRestriction(r string) bool {
	if p == nil {
		return false
	}
	for _, x := range p.DietaryRestrictions {
		if x == r {
			return true
		}
	}
	return false
}

// ActiveRestrictions 返回除 "none" 外的饮食限制。
func (p *DietaryProfile) ActiveRestrictions() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.DietaryRestrictions))
	for _, r := range p.DietaryRestrictions {
		if r != RestrictionNone {
			out = append(out, r)
		}
	}
	return out
}

// Clone 深拷贝画像。
func (p *DietaryProfile) Clone() *DietaryProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Allergies = append([]string(nil), p.Allergies...)
	c.DietaryRestrictions = append([]string(nil), p.DietaryRestrictions...)
	c.DislikedIngredients = append([]string(nil), p.DislikedIngredients...)
	c.FavoriteCuisines = append([]string(nil), p.FavoriteCuisines...)
	c.MaxCalories = clonePtr(p.MaxCalories)
	c.MinProtein = clonePtr(p.MinProtein)
	c.MaxCarbs = clonePtr(p.MaxCarbs)
	c.MaxFat = clonePtr(p.MaxFat)
	c.MaxPrepTime = clonePtr(p.MaxPrepTime)
	return &c
}

// Optional 记录 JSON 字段是否出现、是否为 null，用于区分"未提供"与"显式清空"。
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// UnmarshalJSON 只在字段出现时被调用，null 也会进来。
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	var zero T
	o.Value = zero
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// ProfilePatch 是部分更新的变更集：只有出现的字段会覆盖原值。
// 可选上限与列表字段传 null 表示清空（不再限制）；spice_tolerance 与 sweetness_preference 不接受 null。
type ProfilePatch struct {
	Allergies           Optional[[]string] `json:"allergies"`
	DietaryRestrictions Optional[[]string] `json:"dietary_restrictions"`
	DislikedIngredients Optional[[]string] `json:"disliked_ingredients"`
	FavoriteCuisines    Optional[[]string] `json:"favorite_cuisines"`
	MaxCalories         Optional[float64]  `json:"max_calories"`
	MinProtein          Optional[float64]  `json:"min_protein"`
	MaxCarbs            Optional[float64]  `json:"max_carbs"`
	MaxFat              Optional[float64]  `json:"max_fat"`
	MaxPrepTime         Optional[float64]  `json:"max_prep_time"`
	SkillLevel          Optional[string]   `json:"skill_level"`
	SpiceTolerance      Optional[int]      `json:"spice_tolerance"`
	SweetnessPreference Optional[int]      `json:"sweetness_preference"`
}

// DecodeProfilePatch 严格解码变更集：未知字段直接拒绝。
func DecodeProfilePatch(data []byte) (*ProfilePatch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var patch ProfilePatch
	if err := dec.Decode(&patch); err != nil {
		return nil, NewInvalidInputError(ModuleProfile, fmt.Errorf("decode patch: %w", err))
	}
	for name, o := range map[string]Optional[int]{
		"spice_tolerance":      patch.SpiceTolerance,
		"sweetness_preference": patch.SweetnessPreference,
	} {
		if o.Null {
			return nil, NewInvalidInputError(ModuleProfile, fmt.Errorf("decode patch: %s must not be null", name))
		}
	}
	return &patch, nil
}

// Merge 返回应用变更集后的新画像（不修改 p），并用创建 schema 校验结果。
func (p *DietaryProfile) Merge(patch *ProfilePatch) (*DietaryProfile, error) {
	out := p.Clone()
	if patch == nil {
		return out, nil
	}
	mergeList(&out.Allergies, patch.Allergies)
	mergeList(&out.DietaryRestrictions, patch.DietaryRestrictions)
	mergeList(&out.DislikedIngredients, patch.DislikedIngredients)
	mergeList(&out.FavoriteCuisines, patch.FavoriteCuisines)
	mergeBound(&out.MaxCalories, patch.MaxCalories)
	mergeBound(&out.MinProtein, patch.MinProtein)
	mergeBound(&out.MaxCarbs, patch.MaxCarbs)
	mergeBound(&out.MaxFat, patch.MaxFat)
	mergeBound(&out.MaxPrepTime, patch.MaxPrepTime)
	if patch.SkillLevel.Set {
		out.SkillLevel = patch.SkillLevel.Value
	}
	if patch.SpiceTolerance.Set && !patch.SpiceTolerance.Null {
		out.SpiceTolerance = patch.SpiceTolerance.Value
	}
	if patch.SweetnessPreference.Set && !patch.SweetnessPreference.Null {
		out.SweetnessPreference = patch.SweetnessPreference.Value
	}
	out.Normalize()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.UpdateTime = time.Now()
	return out, nil
}

// mergeList null 清空列表。
func mergeList(dst *[]string, o Optional[[]string]) {
	if !o.Set {
		return
	}
	*dst = append([]string(nil), o.Value...)
}

// mergeBound null 清空上限。
func mergeBound(dst **float64, o Optional[float64]) {
	switch {
	case !o.Set:
	case o.Null:
		*dst = nil
	default:
		v := o.Value
		*dst = &v
	}
}

// Tighten 返回叠加了请求级约束后的画像：上限取较小值，饮食限制取并集。
// 只会让画像更严格，不会放宽。p 为 nil 时以空画像为基础。
func (p *DietaryProfile) Tighten(maxTime, maxCalories *float64, restrictions []string) *DietaryProfile {
	var out *DietaryProfile
	if p == nil {
		out = &DietaryProfile{}
	} else {
		out = p.Clone()
	}
	out.MaxPrepTime = minPtr(out.MaxPrepTime, maxTime)
	out.MaxCalories = minPtr(out.MaxCalories, maxCalories)
	for _, r := range normalizeSet(restrictions) {
		if r == RestrictionNone || out.HasRestriction(r) {
			continue
		}
		out.DietaryRestrictions = append(out.DietaryRestrictions, r)
	}
	if len(out.ActiveRestrictions()) > 0 {
		out.DietaryRestrictions = out.ActiveRestrictions()
	}
	return out
}

// IsEmpty 画像是否不含任何约束。
func (p *DietaryProfile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.Allergies) == 0 && len(p.ActiveRestrictions()) == 0 &&
		len(p.DislikedIngredients) == 0 && p.MaxCalories == nil && p.MinProtein == nil &&
		p.MaxCarbs == nil && p.MaxFat == nil && p.MaxPrepTime == nil
}

func normalizeSet(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		n := strings.TrimSpace(strings.ToLower(s))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func minPtr(a, b *float64) *float64 {
	switch {
	case a == nil:
		return clonePtr(b)
	case b == nil:
		return clonePtr(a)
	case *b < *a:
		return clonePtr(b)
	default:
		return clonePtr(a)
	}
}
