package tgui

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()

	m := New().
		Title("📅", "Plan <today>").
		KV("Window", "09:00-17:00").
		Line("a & b").
		HTML(S("done")).
		Bullets("one", " ", "two").
		Build()

	want := "📅 <b>Plan &lt;today&gt;</b>\n• <b>Window</b>: 09:00-17:00\na &amp; b\n<s>done</s>\n• one\n• two"
	if m.Text != want {
		t.Fatalf("text:\n%s\nwant:\n%s", m.Text, want)
	}
	if m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview || m.Opt.ReplyMarkupAdapter != nil {
		t.Fatalf("opt=%+v", m.Opt)
	}
}

func TestData(t *testing.T) {
	t.Parallel()

	d, err := Data("done", "0123456789abcdef0123456789abcdef0123", "3")
	if err != nil || d != "done:0123456789abcdef0123456789abcdef0123:3" {
		t.Fatalf("d=%q err=%v", d, err)
	}
	if _, err := Data("x", strings.Repeat("a", 64)); err != ErrCallbackDataTooLong {
		t.Fatalf("err=%v", err)
	}
}

func TestGrid(t *testing.T) {
	t.Parallel()

	btns := []tele.Btn{Btn("1", "a"), Btn("2", "b"), Btn("3", "c")}
	kb := Grid(2, btns)
	if kb.Rows() != 2 {
		t.Fatalf("rows=%d", kb.Rows())
	}
	if got := len(kb.Markup().InlineKeyboard); got != 2 {
		t.Fatalf("inline rows=%d", got)
	}
	if m := New().Inline(NewInline()).Build(); m.Opt.ReplyMarkupAdapter != nil {
		t.Fatalf("empty keyboard attached")
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	if got := TruncRunes("héllo", 3); got != "hél…" {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("hi", 3); got != "hi" {
		t.Fatalf("got %q", got)
	}
}
