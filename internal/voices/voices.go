package voices

// Profile описывает голос синтеза из каталога провайдера.
// Name совпадает с ключом prebuilt-голоса, который понимает провайдер.
type Profile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Gender      string   `json:"gender"`
	Tags        []string `json:"tags"`
}

// Каталог статичен: загружается один раз при старте процесса,
// в рантайме никогда не мутирует.
var catalog = []Profile{
	{ID: "aoede", Name: "Aoede", Gender: "Female", Description: "Professional and composed, reads with experienced clarity.", Tags: []string{"professional", "clear", "composed"}},
	{ID: "zephyr", Name: "Zephyr", Gender: "Female", Description: "Energetic and bright, a youthful fast-paced delivery.", Tags: []string{"energetic", "bright", "youthful"}},
	{ID: "kore", Name: "Kore", Gender: "Female", Description: "Calm and soothing, gentle with a soft relaxed pace.", Tags: []string{"calm", "soothing", "soft"}},
	{ID: "leda", Name: "Leda", Gender: "Female", Description: "Authoritative and formal, direct and commanding.", Tags: []string{"authoritative", "formal", "direct"}},
	{ID: "algenib", Name: "Algenib", Gender: "Female", Description: "Warm and friendly, confident and approachable.", Tags: []string{"warm", "friendly", "confident"}},
	{ID: "callirrhoe", Name: "Callirrhoe", Gender: "Female", Description: "Expressive and quirky, a lively distinctive character.", Tags: []string{"expressive", "quirky", "lively"}},
	{ID: "charon", Name: "Charon", Gender: "Male", Description: "Deep and trustworthy, smooth conversational tone.", Tags: []string{"deep", "smooth", "steady"}},
	{ID: "fenrir", Name: "Fenrir", Gender: "Male", Description: "Resonant and intense, strong with a dramatic edge.", Tags: []string{"resonant", "intense", "dramatic"}},
	{ID: "puck", Name: "Puck", Gender: "Male", Description: "Playful and mischievous, animated with a sense of humour.", Tags: []string{"playful", "animated", "humorous"}},
	{ID: "orus", Name: "Orus", Gender: "Male", Description: "Balanced and neutral, clear and reliable for any text.", Tags: []string{"balanced", "neutral", "reliable"}},
	{ID: "umbriel", Name: "Umbriel", Gender: "Male", Description: "Narrator-like and wise, grounded and engaging.", Tags: []string{"narrator", "wise", "grounded"}},
	{ID: "sadachbia", Name: "Sadachbia", Gender: "Male", Description: "Laid-back and cool, textured casual delivery.", Tags: []string{"laid-back", "cool", "casual"}},
}

// languages — целевые языки дубляжа, поддерживаемые провайдером.
var languages = []string{
	"English", "French", "German", "Spanish", "Italian",
	"Portuguese", "Russian", "Japanese", "Chinese", "Arabic",
	"Hindi", "Korean",
}

// Catalog возвращает копию каталога голосов.
func Catalog() []Profile {
	out := make([]Profile, len(catalog))
	copy(out, catalog)
	return out
}

// ByID ищет голос по идентификатору.
func ByID(id string) (Profile, bool) {
	for _, v := range catalog {
		if v.ID == id {
			return v, true
		}
	}
	return Profile{}, false
}

// Default возвращает голос по умолчанию (первый в каталоге).
func Default() Profile { return catalog[0] }

// Languages возвращает копию списка целевых языков дубляжа.
func Languages() []string {
	out := make([]string, len(languages))
	copy(out, languages)
	return out
}
