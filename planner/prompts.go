package planner

// Instructions is the system prompt shared by every planner call.
const Instructions = `You plan a fragment based code generation workflow. Tools generate Go code fragments with a semantic type; fragments depend on each other through a dependency graph and are finally assembled into one complete program. Answer precisely in the requested format.`

const queryAnalysisPrompt = `Task: Analyze the query and determine the required skills, tools, and semantic workflow.

Available tools: {{ join ", " .Tools }}
Tool metadata:
{{ .ToolMetadata }}
Query: {{ .Query }}

Semantic Framework Context:
- This is a SEMANTIC CODE GENERATION system
- Tools generate executable Go code fragments with specific semantic types
- Each semantic type has dependencies that must be satisfied first
- The goal is to assemble a complete executable program

Semantic Types and Dependencies:
{{ .Dependencies }}

Tool to Semantic Type Mapping:
{{ .ToolTypes }}

Instructions:
1. Identify the main objectives and determine if this is a code generation task
2. Identify the required semantic workflow
3. List the skills needed and the tools that can address the query
4. Consider the dependency order for multi-step code generation
5. Note that tools generate CODE FRAGMENTS that need to be ASSEMBLED

Your response should include:
1. A concise summary of the query's requirements
2. Required skills with explanations
3. Relevant tools and their semantic roles
4. Additional considerations for the code generation workflow
`

const nextStepPrompt = `IMPORTANT - For code generation tasks:
- These tools generate CODE FRAGMENTS, not complete solutions
- Each tool contributes ONE PART of the final program
- A final assembly step is needed

Semantic State:
- Completed semantic types: {{ join ", " .Completed }}
- Completion status: {{ .Completion }}
- Next possible types: {{ join ", " .Ready }}

Semantic Dependencies:
{{ .Dependencies }}

Tool Semantic Mapping:
{{ .ToolTypes }}

Task: Determine the optimal next step to address the given query based on the provided analysis, available tools, and previous steps taken.

Context:
Query: {{ .Query }}
Query Analysis: {{ .Analysis }}

Available Tools: {{ join ", " .Tools }}
Tool Metadata:
{{ .ToolMetadata }}

Previous Steps and Their Results:
{{ .Actions }}

Current Step: {{ .Step }} in {{ .MaxSteps }} steps
Remaining Steps: {{ .Remaining }}

Instructions:
1. Select ONE tool best suited for the next step, keeping in mind the remaining steps.
2. Formulate a specific, achievable sub-goal for the selected tool.
3. Track which fragments exist and which fragment is needed next.
4. Plan for final code assembly when all fragments are ready.

Response Format:
1. Justification: Explain your choice.
2. Context, Sub-Goal, and Tool, ONCE, in this format:

Context: <all information the tool needs, including data from previous steps>
Sub-Goal: <what code fragment or assembly step is needed>
Tool Name: <tool_name>

Rules:
- The tool name MUST exactly match one of: {{ join ", " .Tools }}
- Your response MUST conclude with the Context, Sub-Goal, and Tool Name sections IN THIS ORDER.
`

const commandPrompt = `Task: Generate a precise command to execute the selected tool based on semantic context.

Query: {{ .Query }}
Context: {{ .Context }}
Sub-Goal: {{ .SubGoal }}
Selected Tool: {{ .ToolName }}
Tool Metadata:
{{ .ToolMetadata }}

Semantic Context:
- Available semantic fragments: {{ join ", " .Completed }}
- Completion status: {{ .Completion }}
- Next possible types: {{ join ", " .Ready }}
- Available variables: {{ join ", " .Variables }}

Instructions:
1. Tools generate code fragments, not data objects.
2. Every registered fragment is bound as "<type>" and "<type>_fragment"; the list of all fragments is bound as "fragments".
3. Variables provided by executed fragments are bound under their own names.
4. The command is Go source. Arguments are passed as one map[string]any.

Output Format:
Analysis: <analysis>
Command Explanation: <explanation>
Generated Command:
` + "```go" + `
execution := tool.Execute(map[string]any{"parameter": value})
` + "```" + `

MANDATORY FORMATTING RULES:
1. ALWAYS assign the call: execution := tool.Execute(...)
2. NEVER call tool.Execute(...) without the execution assignment
3. NEVER call {{ .ToolName }}.Execute(...); the tool is always bound as "tool"
4. For the fragments list pass "fragments": fragments

CORRECT Examples:
execution := tool.Execute(map[string]any{"model": "TFIM", "n_qubits": 8})
execution := tool.Execute(map[string]any{"spec_fragment": spec})
execution := tool.Execute(map[string]any{"fragments": fragments})
`

const verificationPrompt = `Task: Evaluate whether the memory is complete and accurate enough to answer the query, or whether additional tool usage is needed.

Context:
Query: {{ .Query }}
Available Tools: {{ join ", " .Tools }}
Initial Analysis: {{ .Analysis }}
Memory (tools used and results):
{{ .Actions }}

Semantic Workflow Analysis:
- Available semantic fragments: {{ join ", " .Completed }}
- Required for complete solution: {{ join ", " .Required }}
- Missing semantic types: {{ join ", " .Missing }}
- Completion status: {{ .Completion }}

Semantic Completeness Check:
- Individual fragments are progress, NOT completion
- The task is ONLY complete when a {{ .Final }} fragment exists

Response Format:

If the memory is complete, accurate, AND verified:
Explanation:
<why the memory is sufficient>

Conclusion: STOP

If the memory is incomplete or requires further verification:
Explanation:
<what additional steps are needed>

Conclusion: CONTINUE

IMPORTANT: Your response MUST end with either 'Conclusion: STOP' or 'Conclusion: CONTINUE'
`

const finalOutputPrompt = `Task: Generate the final output based on the query and tools used in the process.

Context:
Query: {{ .Query }}
Actions Taken:
{{ .Actions }}
{{ if .Components }}
Semantic Components Generated:
{{ range .Components }}- {{ . }}
{{ end }}{{ end }}
Output Structure:
1. Summary
2. Detailed Analysis: each step, the tool used and its key results
3. Key Findings
4. Answer to the Query
5. Additional Insights (if applicable)
6. Conclusion
`

const directOutputPrompt = `Context:
Query: {{ .Query }}
Initial Analysis: {{ default "Not available" .Analysis }}

Semantic Fragments: {{ .FragmentCount }} fragments generated
Complete Solution Available: {{ .HasFinal }}
Actions Taken:
{{ .Actions }}

Please generate the completed Go code to answer the user query. Take care of the format and completeness of the code. Conclude with a precise and direct answer to the query.

Answer:
`
