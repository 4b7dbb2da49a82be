package texttemplar_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nikitaxru/texttemplar"
)

// ParamsSuite covers the parameter store operations.
type ParamsSuite struct {
	suite.Suite
}

func TestParamsSuite(t *testing.T) {
	suite.Run(t, new(ParamsSuite))
}

func (s *ParamsSuite) parse(src string, opts ...texttemplar.Option) *texttemplar.Document {
	doc, err := texttemplar.Parse(src, opts...)
	s.Require().NoError(err)
	return doc
}

func (s *ParamsSuite) TestStrictSetUnknown() {
	doc := s.parse("<TMPL_VAR NAME=X>")
	err := doc.Set("nope", "v")
	var uerr *texttemplar.UnknownParamError
	s.Require().ErrorAs(err, &uerr)
	s.Assert().Equal("nope", uerr.Name)
}

func (s *ParamsSuite) TestStrictGetUnknown() {
	doc := s.parse("<TMPL_VAR NAME=X>")
	_, err := doc.Get("nope")
	var uerr *texttemplar.UnknownParamError
	s.Require().ErrorAs(err, &uerr)
}

func (s *ParamsSuite) TestRelaxedSetUnknownHasNoEffect() {
	doc := s.parse("a <TMPL_VAR NAME=X> b", texttemplar.WithStrictParams(false))
	s.Require().NoError(doc.Set("nope", "v"))
	s.Require().NoError(doc.Set("X", "x"))
	out, err := doc.Render()
	s.Require().NoError(err)
	s.Assert().Equal("a x b", out)

	got, err := doc.Get("nope")
	s.Require().NoError(err)
	s.Assert().Equal("v", got)
}

func (s *ParamsSuite) TestSetGetScalar() {
	doc := s.parse("<TMPL_VAR NAME=X>")
	s.Require().NoError(doc.Set("X", "hello"))
	got, err := doc.Get("x")
	s.Require().NoError(err)
	s.Assert().Equal("hello", got)
}

func (s *ParamsSuite) TestScalarConversion() {
	doc := s.parse("<TMPL_VAR A><TMPL_VAR B><TMPL_VAR C><TMPL_VAR D>")
	s.Require().NoError(doc.Set("A", 42))
	s.Require().NoError(doc.Set("B", 3.0))
	s.Require().NoError(doc.Set("C", 2.5))
	s.Require().NoError(doc.Set("D", true))
	out, err := doc.Render()
	s.Require().NoError(err)
	s.Assert().Equal("4232.5true", out)
}

func (s *ParamsSuite) TestSetNilResets() {
	doc := s.parse("[<TMPL_VAR NAME=X>]")
	s.Require().NoError(doc.Set("X", "v"))
	s.Require().NoError(doc.Set("X", nil))
	out, err := doc.Render()
	s.Require().NoError(err)
	s.Assert().Equal("[]", out)
}

func (s *ParamsSuite) TestCaseInsensitiveNames() {
	doc := s.parse("<TMPL_VAR NAME=Greeting>")
	s.Require().NoError(doc.Set("GREETING", "hi"))
	got, err := doc.Get("greeting")
	s.Require().NoError(err)
	s.Assert().Equal("hi", got)
}

func (s *ParamsSuite) TestNames() {
	doc := s.parse("<TMPL_VAR NAME=B> <TMPL_LOOP NAME=A>x</TMPL_LOOP> <TMPL_VAR NAME=C>")
	s.Assert().Equal([]string{"a", "b", "c"}, doc.Names())
}

func (s *ParamsSuite) TestClearAll() {
	doc := s.parse("<TMPL_VAR X>|<TMPL_LOOP L>i</TMPL_LOOP>")
	s.Require().NoError(doc.Set("X", "v"))
	s.Require().NoError(doc.Set("L", []texttemplar.Params{{}}))
	doc.ClearAll()
	out, err := doc.Render()
	s.Require().NoError(err)
	s.Assert().Equal("|", out)
}

func (s *ParamsSuite) TestDefensiveCopyOfSequences() {
	doc := s.parse("<TMPL_LOOP NAME=L>[<TMPL_VAR NAME=A>]</TMPL_LOOP>")
	rows := []texttemplar.Params{{"A": "original"}}
	s.Require().NoError(doc.Set("L", rows))

	rows[0]["A"] = "mutated"
	out, err := doc.Render()
	s.Require().NoError(err)
	s.Assert().Equal("[original]", out)
}

func (s *ParamsSuite) TestDefensiveCopyOfNestedSequences() {
	doc := s.parse("<TMPL_LOOP NAME=L><TMPL_LOOP NAME=M><TMPL_VAR NAME=A></TMPL_LOOP></TMPL_LOOP>")
	inner := []texttemplar.Params{{"A": "x"}}
	s.Require().NoError(doc.Set("L", []texttemplar.Params{{"M": inner}}))

	inner[0]["A"] = "mutated"
	out, err := doc.Render()
	s.Require().NoError(err)
	s.Assert().Equal("x", out)
}

func (s *ParamsSuite) TestGetLoopReturnsCopy() {
	doc := s.parse("<TMPL_LOOP NAME=L><TMPL_VAR NAME=A></TMPL_LOOP>")
	s.Require().NoError(doc.Set("L", []texttemplar.Params{{"A": "x"}}))

	got, err := doc.Get("L")
	s.Require().NoError(err)
	rows, ok := got.([]texttemplar.Params)
	s.Require().True(ok, "loop values come back as []Params")
	rows[0]["A"] = "mutated"

	out, err := doc.Render()
	s.Require().NoError(err)
	s.Assert().Equal("x", out)
}

func (s *ParamsSuite) TestGenericSequenceOfMaps() {
	// YAML and JSON decoders produce []any of map[string]any.
	doc := s.parse("<TMPL_LOOP NAME=L>[<TMPL_VAR NAME=A>]</TMPL_LOOP>")
	s.Require().NoError(doc.Set("L", []any{
		map[string]any{"A": "1"},
		map[string]any{"A": "2"},
	}))
	out, err := doc.Render()
	s.Require().NoError(err)
	s.Assert().Equal("[1][2]", out)
}
