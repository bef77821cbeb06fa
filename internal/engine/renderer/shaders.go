package renderer

// skinningGLSL blends the joint palette stored four texels per matrix in
// a buffer texture. Unskinned draws use the identity.
const skinningGLSL = `
layout (location = 0) in vec3 aPos;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in vec4 aWeights;
layout (location = 3) in uvec4 aJoints;

uniform samplerBuffer uJoints;
uniform int uSkinned;

mat4 jointMatrix(uint j) {
	int b = int(j) * 4;
	return mat4(
		texelFetch(uJoints, b),
		texelFetch(uJoints, b + 1),
		texelFetch(uJoints, b + 2),
		texelFetch(uJoints, b + 3));
}

mat4 skinMatrix() {
	if (uSkinned == 0) {
		return mat4(1.0);
	}
	return aWeights.x * jointMatrix(aJoints.x)
		+ aWeights.y * jointMatrix(aJoints.y)
		+ aWeights.z * jointMatrix(aJoints.z)
		+ aWeights.w * jointMatrix(aJoints.w);
}
`

// litVertexShader skins and transforms positions and normals into world
// space and projects them into the light's depth map.
const litVertexShader = `
#version 410 core
` + skinningGLSL + `
uniform mat4 uModel;
uniform mat4 uViewProj;
uniform mat4 uLightSpace;

out vec3 vNormal;
out vec4 vLightPos;

void main() {
	mat4 world = uModel * skinMatrix();
	vec4 pos = world * vec4(aPos, 1.0);
	vNormal = mat3(world) * aNormal;
	vLightPos = uLightSpace * pos;
	gl_Position = uViewProj * pos;
}
`

// litFragmentShader applies ambient plus one Lambert directional term,
// dimmed by a 3x3 PCF lookup when the surface receives shadows.
const litFragmentShader = `
#version 410 core

in vec3 vNormal;
in vec4 vLightPos;

uniform vec3 uColor;
uniform vec3 uAmbient;
uniform vec3 uLightDir;
uniform vec3 uLightColor;
uniform float uLightIntensity;

uniform sampler2DShadow uShadowMap;
uniform int uReceiveShadow;
uniform float uShadowBias;

out vec4 FragColor;

float shadowFactor(vec3 n, vec3 l) {
	if (uReceiveShadow == 0) {
		return 1.0;
	}
	vec3 p = vLightPos.xyz / vLightPos.w * 0.5 + 0.5;
	if (p.z > 1.0) {
		return 1.0;
	}
	float bias = max(uShadowBias * 4.0 * (1.0 - dot(n, l)), uShadowBias);
	vec2 texel = 1.0 / vec2(textureSize(uShadowMap, 0));
	float lit = 0.0;
	for (int x = -1; x <= 1; x++) {
		for (int y = -1; y <= 1; y++) {
			lit += texture(uShadowMap, vec3(p.xy + vec2(x, y) * texel, p.z - bias));
		}
	}
	return lit / 9.0;
}

void main() {
	vec3 n = normalize(vNormal);
	vec3 l = normalize(uLightDir);
	float diffuse = max(dot(n, l), 0.0);
	vec3 light = uAmbient + uLightColor * uLightIntensity * diffuse * shadowFactor(n, l);
	FragColor = vec4(uColor * min(light, vec3(1.0)), 1.0);
}
`

// depthVertexShader renders skinned casters from the light.
const depthVertexShader = `
#version 410 core
` + skinningGLSL + `
uniform mat4 uModel;
uniform mat4 uLightSpace;

void main() {
	gl_Position = uLightSpace * uModel * skinMatrix() * vec4(aPos, 1.0);
}
`

const depthFragmentShader = `
#version 410 core

void main() {}
`
