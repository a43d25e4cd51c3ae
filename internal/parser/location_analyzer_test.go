package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adequa-rag/internal/types"
	"adequa-rag/pkg/agent"
)

func TestAnalyzeRemoteJobSkipsCandidate(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Content: "TIPO_VAGA: REMOTA\nLOCALIZAÇÃO_VAGA: Não especificado"},
	})
	analyzer := NewLocationAnalyzer(mock, nil)

	got := analyzer.Analyze(context.Background(), "Vaga 100% remota para dev Go", "Mora em Recife")
	assert.Equal(t, types.RemoteVerdict(), got)
	assert.Equal(t, 1, mock.CallCount())
}

func TestAnalyzeOnSiteJob(t *testing.T) {
	onSite := "TIPO_VAGA: PRESENCIAL\nLOCALIZAÇÃO_VAGA: São Paulo"
	tests := []struct {
		name            string
		candidateReply  string
		wantStatus      types.MatchStatus
		wantMatch       bool
		wantCandidateAt string
	}{
		{"同城", "LOCALIZAÇÃO: São Paulo, SP\nDISPOSIÇÃO_MUDANÇA: NAO", types.MatchLocation, true, "São Paulo, SP"},
		{"不同城市", "LOCALIZAÇÃO: Recife - PE\nDISPOSIÇÃO_MUDANÇA: NAO", types.MatchDifferent, false, "Recife - PE"},
		{"愿意搬迁优先", "LOCALIZAÇÃO: Manaus\nDISPOSIÇÃO_MUDANÇA: SIM", types.MatchWillRelocate, true, "Manaus"},
		{"候选人地点未知", "LOCALIZAÇÃO: Não informado\nDISPOSIÇÃO_MUDANÇA: NAO", types.MatchCandidateUnknown, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := agent.NewMockChatClientSequential([]agent.MockResponse{
				{Content: onSite},
				{Content: tt.candidateReply},
			})
			got := NewLocationAnalyzer(mock, nil).Analyze(context.Background(), "Vaga presencial em São Paulo", "cv")

			assert.True(t, got.HasLocationRequirement)
			assert.Equal(t, tt.wantStatus, got.MatchStatus)
			assert.Equal(t, tt.wantMatch, got.IsLocationMatch)
			require.NotNil(t, got.JobLocation)
			assert.Equal(t, "São Paulo", *got.JobLocation)
			if tt.wantCandidateAt == "" {
				assert.Nil(t, got.CandidateLocation)
			} else {
				require.NotNil(t, got.CandidateLocation)
				assert.Equal(t, tt.wantCandidateAt, *got.CandidateLocation)
			}
		})
	}
}

func TestAnalyzeJobCityFallback(t *testing.T) {
	mock := agent.NewMockChatClient("TIPO_VAGA: PRESENCIAL\nLOCALIZAÇÃO_VAGA: Não especificado", nil)
	job := NewLocationAnalyzer(mock, nil).AnalyzeJob(context.Background(), "Escritório no centro de Curitiba, PR")

	assert.False(t, job.Remote)
	require.NotNil(t, job.Location)
	assert.Equal(t, "Curitiba", *job.Location)
}

func TestAnalyzeJobWithoutLocation(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Content: "TIPO_VAGA: PRESENCIAL\nLOCALIZAÇÃO_VAGA: Não especificado"},
		{Content: "LOCALIZAÇÃO: Salvador\nDISPOSIÇÃO_MUDANÇA: NAO"},
	})
	got := NewLocationAnalyzer(mock, nil, WithFallbackCities([]string{"Lisboa"})).
		Analyze(context.Background(), "Vaga presencial, local a combinar", "cv")

	assert.Equal(t, types.MatchNoSpecificJob, got.MatchStatus)
	assert.True(t, got.IsLocationMatch)
	assert.Nil(t, got.JobLocation)
}

func TestAnalyzeFailuresDegradeToRemote(t *testing.T) {
	mock := agent.NewMockChatClient("", errors.New("timeout"))
	analyzer := NewLocationAnalyzer(mock, nil)

	job := analyzer.AnalyzeJob(context.Background(), "Vaga presencial em Recife")
	assert.True(t, job.Failed)
	assert.Equal(t, types.RemoteVerdict(), analyzer.AnalyzeCandidate(context.Background(), job, "cv"))

	city := "Recife"
	onSite := JobLocation{Location: &city}
	assert.Equal(t, types.RemoteVerdict(), analyzer.AnalyzeCandidate(context.Background(), onSite, "cv"))
}

func TestParseJobLocationReply(t *testing.T) {
	jobType, location := parseJobLocationReply("**TIPO_VAGA:** [PRESENCIAL]\n**LOCALIZAÇÃO_VAGA:** Belo Horizonte/MG")
	assert.Equal(t, "PRESENCIAL", jobType)
	assert.Equal(t, "Belo Horizonte/MG", location)

	jobType, location = parseJobLocationReply("sem formato")
	assert.Equal(t, "REMOTA", jobType)
	assert.Empty(t, location)
}

func TestLocationsOverlap(t *testing.T) {
	assert.True(t, LocationsOverlap("São Paulo, SP", "são paulo"))
	assert.True(t, LocationsOverlap("Rio de Janeiro - RJ", "Niterói, RJ"))
	assert.False(t, LocationsOverlap("Recife", "Fortaleza"))
	assert.False(t, LocationsOverlap("", "Recife"))
}
