package filter

import (
	"strings"

	"github.com/rushteam/saveeat/core"
)

// rule 是一条不合规配料子串，Except 中的子串出现时不算命中（例如 "egg" 不命中 "eggplant"）。
type rule struct {
	Term   string
	Except []string
}

var (
	meatAndFish = []rule{
		{Term: "meat"}, {Term: "beef"}, {Term: "pork"}, {Term: "chicken"}, {Term: "turkey"},
		{Term: "lamb"}, {Term: "veal"}, {Term: "bacon"}, {Term: "ham", Except: []string{"graham", "champagne", "hamburger bun"}},
		{Term: "sausage"}, {Term: "salami"}, {Term: "pepperoni"}, {Term: "prosciutto"}, {Term: "chorizo"},
		{Term: "duck"}, {Term: "goose", Except: []string{"gooseberr"}}, {Term: "venison"}, {Term: "steak"},
		{Term: "fish"}, {Term: "salmon"}, {Term: "tuna"}, {Term: "cod"}, {Term: "anchov"},
		{Term: "sardine"}, {Term: "shrimp"}, {Term: "prawn"}, {Term: "crab"}, {Term: "lobster"},
		{Term: "clam"}, {Term: "mussel"}, {Term: "oyster", Except: []string{"oyster mushroom"}},
		{Term: "scallop"}, {Term: "squid"}, {Term: "octopus"}, {Term: "gelatin"}, {Term: "lard"},
	}

	dairy = []rule{
		{Term: "milk", Except: []string{"coconut milk", "almond milk", "soy milk", "oat milk", "rice milk", "cashew milk"}},
		{Term: "cheese", Except: []string{"vegan cheese"}},
		{Term: "butter", Except: []string{"peanut butter", "almond butter", "cashew butter", "cocoa butter", "butternut", "butter bean", "apple butter"}},
		{Term: "cream", Except: []string{"cream of tartar", "coconut cream"}},
		{Term: "yogurt", Except: []string{"coconut yogurt", "soy yogurt"}},
		{Term: "yoghurt"}, {Term: "whey"}, {Term: "casein"}, {Term: "ghee"}, {Term: "custard"},
	}

	eggAndHoney = []rule{
		{Term: "egg", Except: []string{"eggplant", "veggie"}},
		{Term: "honey", Except: []string{"honeydew"}},
		{Term: "mayonnaise", Except: []string{"vegan mayonnaise"}},
	}

	gluten = []rule{
		{Term: "wheat", Except: []string{"buckwheat"}},
		{Term: "flour", Except: []string{"rice flour", "almond flour", "coconut flour", "corn flour", "cornflour", "chickpea flour", "gluten-free", "gluten free"}},
		{Term: "bread", Except: []string{"gluten-free", "gluten free"}},
		{Term: "pasta", Except: []string{"gluten-free", "gluten free", "rice pasta"}},
		{Term: "spaghetti"}, {Term: "macaroni"}, {Term: "noodle", Except: []string{"rice noodle"}},
		{Term: "barley"}, {Term: "rye"}, {Term: "couscous"}, {Term: "semolina"}, {Term: "bulgur"},
		{Term: "farro"}, {Term: "spelt"}, {Term: "cracker"}, {Term: "soy sauce"}, {Term: "beer"},
		{Term: "seitan"}, {Term: "malt"}, {Term: "tortilla", Except: []string{"corn tortilla"}},
	}
)

// restrictionTable 是每种饮食限制对应的不合规配料表，人工维护，不做推断。
var restrictionTable = map[string][]rule{
	core.RestrictionVegetarian: meatAndFish,
	core.RestrictionVegan:      concat(meatAndFish, dairy, eggAndHoney),
	core.RestrictionGlutenFree: gluten,
	core.RestrictionDairyFree:  dairy,
}

func concat(parts ...[]rule) []rule {
	var out []rule
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// DisqualifyingTerms 返回饮食限制的不合规子串（不含例外），未知限制返回 nil。
func DisqualifyingTerms(restriction string) []string {
	rules := restrictionTable[restriction]
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Term
	}
	return out
}

// Violates 判断菜谱是否违反饮食限制，返回第一个不合规配料。
// "none" 与未知限制不排除任何菜谱。
func Violates(restriction string, r *core.Recipe) (string, bool) {
	rules, ok := restrictionTable[restriction]
	if !ok {
		return "", false
	}
	for _, ing := range r.NormalizedIngredients() {
		for _, rl := range rules {
			if ruleHits(rl, ing) {
				return ing, true
			}
		}
	}
	return "", false
}

func ruleHits(rl rule, ing string) bool {
	if !strings.Contains(ing, rl.Term) {
		return false
	}
	for _, ex := range rl.Except {
		if strings.Contains(ing, ex) {
			return false
		}
	}
	return true
}

// Compatible 返回菜谱对饮食限制的匹配指示：+1 合规，-1 违反。
func Compatible(restriction string, r *core.Recipe) float64 {
	if _, bad := Violates(restriction, r); bad {
		return -1
	}
	return 1
}
