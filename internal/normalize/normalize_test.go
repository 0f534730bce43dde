package normalize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNormalizer() *Normalizer {
	return New(nil)
}

func TestOf_CollapsesNaNAndNull(t *testing.T) {
	assert.True(t, Of(nil).IsAbsent())
	assert.True(t, Of(math.NaN()).IsAbsent())
	assert.True(t, Number(math.Inf(1)).IsAbsent())
	assert.Equal(t, KindText, Of("x").Kind())
	assert.Equal(t, KindList, Of([]any{"a", 1.0}).Kind())
	assert.Equal(t, KindMap, Of(map[string]any{"a": "b"}).Kind())
}

func TestCell_MissingMarkers(t *testing.T) {
	for _, s := range []string{"", " ", "NaN", "nan", "None", "null", "N/A"} {
		assert.True(t, Cell(s).IsAbsent(), "cell %q", s)
	}
	assert.Equal(t, "Joe's", Cell("Joe's").String())
}

func TestParseFloat(t *testing.T) {
	f, ok := ParseFloat(Text(" 40.7233 "))
	require.True(t, ok)
	assert.InDelta(t, 40.7233, f, 1e-9)

	_, ok = ParseFloat(Text("nan"))
	assert.False(t, ok)
	_, ok = ParseFloat(Text("north"))
	assert.False(t, ok)
	_, ok = ParseFloat(Absent())
	assert.False(t, ok)
	_, ok = ParseFloat(Bool(true))
	assert.False(t, ok)
}

func TestParseReviews_NeverFails(t *testing.T) {
	n := newTestNormalizer()

	inputs := []Value{
		Text(""),
		Absent(),
		Of(math.NaN()),
		Text(`['Great pasta', "Chef's kiss"]`),
		Text(`["Loved it", "", "Would return"]`),
		Text("The best cacio e pepe in the city."),
		Text(`{"stars": 5}`),
		List(Text("one"), Absent(), Number(4)),
	}

	for _, in := range inputs {
		reviews := n.ParseReviews(in)
		for _, r := range reviews {
			assert.NotEmpty(t, r.Text)
			assert.NotEmpty(t, r.Source)
		}
	}
}

func TestParseReviews_Shapes(t *testing.T) {
	n := newTestNormalizer()

	assert.Empty(t, n.ParseReviews(Text("   ")))

	got := n.ParseReviews(Text(`["Loved it", "", "Would return"]`))
	assert.Equal(t, []Review{
		{Text: "Loved it", Source: SourceUnknown},
		{Text: "Would return", Source: SourceUnknown},
	}, got)

	got = n.ParseReviews(Text(`['Great pasta', "Chef's kiss"]`))
	assert.Equal(t, []Review{
		{Text: "Great pasta", Source: SourceUnknown},
		{Text: "Chef's kiss", Source: SourceUnknown},
	}, got)

	got = n.ParseReviews(Text("Cozy and loud."))
	assert.Equal(t, []Review{{Text: "Cozy and loud.", Source: SourceUnknown}}, got)

	got = n.ParseReviews(Text(`{"stars": 5}`))
	assert.Equal(t, []Review{{Text: `{"stars": 5}`, Source: SourceUnknown}}, got)

	structured := Of([]any{
		map[string]any{"text": "Fantastic", "source": "google"},
		map[string]any{"text": "  ", "source": "google"},
	})
	assert.Equal(t, []Review{{Text: "Fantastic", Source: "google"}}, n.ParseReviews(structured))
}

func TestMergeReviews_StampsSource(t *testing.T) {
	n := newTestNormalizer()
	merged := n.MergeReviews(
		SourcedValue{Source: SourceGoogle, Value: Text(`["A", "B"]`)},
		SourcedValue{Source: SourceOpenTable, Value: Text("C")},
		SourcedValue{Source: SourceOpenTable, Value: Absent()},
	)
	assert.Equal(t, []Review{
		{Text: "A", Source: SourceGoogle},
		{Text: "B", Source: SourceGoogle},
		{Text: "C", Source: SourceOpenTable},
	}, merged)
}

func TestParseTags(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name string
		in   Value
		want []string
	}{
		{"absent", Absent(), nil},
		{"list", List(Text(" cozy "), Text(""), Text("wine")), []string{"cozy", "wine"}},
		{"json array", Text(`["date night", "natural wine"]`), []string{"date night", "natural wine"}},
		{"postgres array", Text(`{cozy,"date night",'wine'}`), []string{"cozy", "date night", "wine"}},
		{"comma separated", Text("wine, date night ,"), []string{"wine", "date night"}},
		{"single", Text(" italian "), []string{"italian"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.ParseTags(tt.in))
		})
	}
}

func TestMergeTags_CaseInsensitiveUnion(t *testing.T) {
	n := newTestNormalizer()
	merged := MergeTags(
		n.ParseTags(List(Text("cozy"))),
		SplitList(Text("wine, date night"), ","),
		SplitList(Text("Italian"), ","),
		[]string{"COZY", "Wine"},
	)
	assert.Equal(t, []string{"cozy", "wine", "date night", "italian"}, merged)
}

func TestCleanUnicode(t *testing.T) {
	in := "\u201cCaf\u00e9\u201d \u2013 open late\u2026 \u200b\uff0420\u2014\ufe6930 \u2018ok\u2019"
	assert.Equal(t, `"Café" - open late... $20-$30 'ok'`, CleanUnicode(in))
}

func TestParsePrice_ASCIIAndTier(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		in       string
		wantText string
		wantTier int
	}{
		{"$$", "$$", 2},
		{"$$$$$", "$$$$$", 4},
		{"$10–20", "$10-20", 2},
		{"＄30–＄50", "$30-$50", 3},
		{"$8", "$8", 1},
		{"100+", "100+", 4},
		{"“pricey”", `"pricey"`, 2},
		{"$10\u201220", "$10-20", 2},
		{"$10\u221220", "$10-20", 2},
		{"$10\u2010\u200920", "$10-20", 2},
		{"$20\u2015$30", "$20-$30", 2},
		{"$40\uff0d60", "$40-60", 3},
		{"$40\ufe6360", "$40-60", 3},
		{"\u201e$$\u201c", `"$$"`, 2},
		{"\u00ab$$$\u00bb", `"$$$"`, 3},
		{"\u201a$\u2032", "'$'", 1},
		{"\u2039$$$$\u2033", `'$$$$"`, 4},
	}

	for _, tt := range tests {
		t.Run(tt.wantText, func(t *testing.T) {
			p := n.ParsePrice(Text(tt.in))
			assert.Equal(t, tt.wantText, p.Text)
			assert.Equal(t, tt.wantTier, p.Tier)
			assert.GreaterOrEqual(t, p.Tier, 1)
			assert.LessOrEqual(t, p.Tier, 4)
			assert.NotEmpty(t, p.Label)
			for _, r := range p.Text {
				assert.Less(t, r, rune(128), "non-ASCII rune in %q", p.Text)
			}
		})
	}

	assert.Equal(t, Price{}, n.ParsePrice(Absent()))
	assert.Equal(t, "Fine dining, expensive", TierLabel(4))
}

func TestParseHours(t *testing.T) {
	n := newTestNormalizer()

	h := n.ParseHours(Text(`{'Sunday': 'Closed', 'Monday': '11 AM–10 PM'}`))
	require.True(t, h.Structured())
	assert.Equal(t, "Monday", h.Days[0].Day)
	assert.Equal(t, "11 AM-10 PM", h.Days[0].Hours)
	assert.Equal(t, "Sunday", h.Days[1].Day)

	got, ok := h.Get("mon")
	assert.True(t, ok)
	assert.Equal(t, "11 AM-10 PM", got)

	raw := n.ParseHours(Text("Open now · Closes 10PM"))
	assert.False(t, raw.Structured())
	assert.Equal(t, "Open now · Closes 10PM", raw.Text)

	lines := n.ParseHours(List(Text("Tuesday: 5 - 11 PM"), Text("Monday: Closed")))
	require.True(t, lines.Structured())
	assert.Equal(t, []DayHours{{Day: "Monday", Hours: "Closed"}, {Day: "Tuesday", Hours: "5-11 PM"}}, lines.Days)

	assert.True(t, n.ParseHours(Absent()).IsEmpty())
}

func TestHours_JSONRoundTrip(t *testing.T) {
	h := Hours{Days: []DayHours{{Day: "Monday", Hours: "9-5"}, {Day: "Tuesday", Hours: "Closed"}}}
	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Monday":"9-5","Tuesday":"Closed"}`, string(data))
	assert.Equal(t, `{"Monday":"9-5","Tuesday":"Closed"}`, string(data))

	var back Hours
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, h, back)

	data, err = json.Marshal(Hours{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestParseHoursPatterns(t *testing.T) {
	h := Hours{Days: []DayHours{
		{Day: "Monday", Hours: "Closed"},
		{Day: "Tuesday", Hours: "7 AM-3 PM"},
		{Day: "Wednesday", Hours: "5-11 PM"},
		{Day: "Friday", Hours: "17:00-02:00"},
		{Day: "Saturday", Hours: "10-22"},
	}}

	p := ParseHoursPatterns(h)
	assert.True(t, p.OpenEarly)
	assert.True(t, p.OpenBreakfast)
	assert.True(t, p.OpenLunch)
	assert.True(t, p.OpenDinner)
	assert.True(t, p.OpenLate)
	assert.True(t, p.OpenWeekends)
	assert.True(t, p.ClosedMondays)
	assert.False(t, p.Open24h)
	assert.Contains(t, p.Summary(), "closed Mondays")
	assert.Equal(t, "O", p.Summary()[:1])
}

func TestParseHoursPatterns_24HoursAndMidnight(t *testing.T) {
	p := ParseHoursPatterns(Hours{Days: []DayHours{
		{Day: "Monday", Hours: "Open 24 hours"},
		{Day: "Tuesday", Hours: "12 PM-12 AM"},
	}})
	assert.True(t, p.Open24h)
	assert.False(t, p.ClosedMondays)
	assert.False(t, p.OpenWeekends)
	assert.False(t, p.OpenLunch)
	assert.True(t, p.OpenLate)

	assert.Equal(t, HoursPatterns{}, ParseHoursPatterns(Hours{Text: "Open late"}))
	assert.Equal(t, "", HoursPatterns{}.Summary())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"pizza", "bar"}, SplitList(Text("pizza; bar;"), ";"))
	assert.Nil(t, SplitList(Absent(), ","))
	assert.Equal(t, []string{"1", "a"}, SplitList(List(Number(1), Absent(), Text("a")), ","))
}
