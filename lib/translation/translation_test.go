package translation

import "testing"

func TestTranslate(t *testing.T) {
	Configure("../../locales", "PL")
	defer Configure("../../locales", "en")

	if got := GetLanguage(); got != "pl" {
		t.Errorf("language = %q", got)
	}
	if got := Translate("Difference"); got != "Różnica" {
		t.Errorf("Translate = %q", got)
	}
	if got := Translate("Price rose above target! Consider trimming %s%% of position.", "25"); got != "Cena wzrosła powyżej celu! Rozważ redukcję pozycji o 25%." {
		t.Errorf("Translate with vars = %q", got)
	}

	plural := []struct {
		n    int
		want string
	}{
		{1, "Alert giełdowy: 1 cel osiągnięty"},
		{3, "Alert giełdowy: 3 cele osiągnięte"},
		{5, "Alert giełdowy: 5 celów osiągniętych"},
		{22, "Alert giełdowy: 22 cele osiągnięte"},
	}
	for _, tc := range plural {
		if got := TranslatePlural("Stock Alert: %d Target Met", "Stock Alert: %d Targets Met", tc.n, tc.n); got != tc.want {
			t.Errorf("TranslatePlural(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestTranslate_NoCatalog(t *testing.T) {
	Configure("../../locales", "")

	if got := GetLanguage(); got != "en" {
		t.Errorf("language = %q", got)
	}
	if got := Translate("Difference"); got != "Difference" {
		t.Errorf("expected the message id back, got %q", got)
	}
	if got := TranslatePlural("Stock Alert: %d Target Met", "Stock Alert: %d Targets Met", 2, 2); got != "Stock Alert: 2 Targets Met" {
		t.Errorf("TranslatePlural = %q", got)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"en_US.UTF-8", "en"},
		{"pl_PL.UTF-8", "pl"},
		{"de_DE@euro", "de"},
		{"pt-BR", "pt"},
		{"PL", "pl"},
		{"C.UTF-8", "en"},
		{"POSIX", "en"},
		{"", "en"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := NormalizeLanguage(tc.in); got != tc.want {
				t.Errorf("NormalizeLanguage(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}

	Configure("../../locales", "pl_PL.UTF-8")
	defer Configure("../../locales", "en")
	if got := Translate("Difference"); got != "Różnica" {
		t.Errorf("system locale not mapped to the pl catalog, got %q", got)
	}
}
